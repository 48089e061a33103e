package restock

import (
	"bufio"
	"io"
	"strconv"
	"strings"
)

// Line is a syntactically valid restock record: "product_id,quantity".
type Line struct {
	Num       int
	ProductID int64
	Qty       int
}

type InvalidLine struct {
	Num    int
	Raw    string
	Reason string
}

// Parse reads comma-separated restock records line by line. Invalid lines
// are collected with a reason and never abort the rest of the input.
func Parse(r io.Reader) (valid []Line, invalid []InvalidLine) {
	sc := bufio.NewScanner(r)
	num := 0
	for sc.Scan() {
		num++
		raw := strings.TrimSpace(sc.Text())
		if raw == "" {
			continue
		}
		parts := strings.Split(raw, ",")
		if len(parts) < 2 {
			invalid = append(invalid, InvalidLine{num, raw, "fewer than 2 fields"})
			continue
		}
		id, err1 := strconv.ParseInt(strings.TrimSpace(parts[0]), 10, 64)
		qty, err2 := strconv.Atoi(strings.TrimSpace(parts[1]))
		if err1 != nil || err2 != nil {
			invalid = append(invalid, InvalidLine{num, raw, "non-numeric fields"})
			continue
		}
		if qty <= 0 {
			invalid = append(invalid, InvalidLine{num, raw, "quantity must be positive"})
			continue
		}
		valid = append(valid, Line{Num: num, ProductID: id, Qty: qty})
	}
	return valid, invalid
}
