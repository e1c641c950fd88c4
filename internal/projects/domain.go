package projects

// Project is the read-only view of a construction project (obra).
type Project struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	ClientName string `json:"client_name"`
	Status     string `json:"status"`
	Active     bool   `json:"active"`
}
