package httpx

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jung-kurt/gofpdf"

	"github.com/integrahub/orderflow/internal/orders"
)

func (h *OrdersHandler) invoice(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	o, err := h.Repo.GetOrder(ctx, id)
	if errors.Is(err, orders.ErrNotFound) {
		writeError(w, http.StatusNotFound, "order not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	productName := "Unknown Product"
	if p, err := h.Repo.GetProduct(ctx, o.ProductID); err == nil {
		productName = p.Name
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 16)
	pdf.CellFormat(190, 10, "OrderFlow - Electronic Invoice", "", 1, "C", false, 0, "")
	pdf.Ln(10)

	pdf.SetFont("Arial", "", 12)
	pdf.CellFormat(190, 10, fmt.Sprintf("Order ID: #%d", o.ID), "", 1, "L", false, 0, "")
	pdf.CellFormat(190, 10, fmt.Sprintf("Date: %s", o.CreatedAt.Format(time.RFC3339)), "", 1, "L", false, 0, "")
	pdf.CellFormat(190, 10, fmt.Sprintf("Customer: %s", o.CustomerName), "", 1, "L", false, 0, "")
	pdf.CellFormat(190, 10, fmt.Sprintf("ID/Tax No: %s", o.Cedula), "", 1, "L", false, 0, "")
	pdf.Ln(10)

	pdf.SetFillColor(200, 220, 255)
	pdf.CellFormat(100, 10, "Product", "1", 0, "C", true, 0, "")
	pdf.CellFormat(30, 10, "Qty", "1", 0, "C", true, 0, "")
	pdf.CellFormat(60, 10, "Total", "1", 1, "C", true, 0, "")

	pdf.CellFormat(100, 10, productName, "1", 0, "L", false, 0, "")
	pdf.CellFormat(30, 10, fmt.Sprintf("%d", o.Quantity), "1", 0, "C", false, 0, "")
	pdf.CellFormat(60, 10, fmt.Sprintf("$%.2f", o.TotalAmount), "1", 1, "R", false, 0, "")

	pdf.Ln(20)
	pdf.SetFont("Arial", "I", 10)
	pdf.CellFormat(190, 10, "Thank you for your purchase. This document is a valid receipt.", "", 1, "C", false, 0, "")

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=invoice_%d.pdf", o.ID))
	if err := pdf.Output(w); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
