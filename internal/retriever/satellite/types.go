package satellite

import "time"

// orderState is the lifecycle of an order on the upstream side.
type orderState string

const (
	orderStateQueued    orderState = "queued"
	orderStateRunning   orderState = "running"
	orderStateCompleted orderState = "completed"
	orderStateFailed    orderState = "failed"
	orderStateRejected  orderState = "rejected"
)

// orderRequest is the submitted order body.
type orderRequest struct {
	Product string    `json:"product"`
	Start   string    `json:"start"`
	End     string    `json:"end"`
	BBox    []float64 `json:"bbox,omitempty"`
}

// orderResponse is the raw API response for order submission and polling.
type orderResponse struct {
	OrderID string     `json:"orderID"`
	Status  orderState `json:"status"`
}

// gridPayload is the downloaded order result: a stack of channel grids on a
// regular lon/lat grid.
type gridPayload struct {
	Times  []time.Time `json:"times"`
	XS     []float64   `json:"xs"`
	YS     []float64   `json:"ys"`
	Values []float64   `json:"values"`
}
