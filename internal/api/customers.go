package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/oskar-77/OskarTrackSystem33/internal/analytics"
	"github.com/oskar-77/OskarTrackSystem33/internal/db"
	"github.com/oskar-77/OskarTrackSystem33/internal/httputil"
)

const (
	defaultCustomerLimit = 100
	maxCustomerLimit     = 1000
)

// queryInt parses an optional non-negative integer query parameter.
func queryInt(r *http.Request, name string, def, max int) (int, error) {
	q := r.URL.Query().Get(name)
	if q == "" {
		return def, nil
	}
	n, err := strconv.Atoi(q)
	if err != nil || n < 0 || n > max {
		return 0, httputil.WithStatus(http.StatusBadRequest, fmt.Errorf("%s must be between 0 and %d", name, max))
	}
	return n, nil
}

// listCustomers pages through customers, most recently seen first:
// ?limit=N&offset=M.
func (s *Server) listCustomers(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", defaultCustomerLimit, maxCustomerLimit)
	if err != nil {
		writeError(w, err)
		return
	}
	offset, err := queryInt(r, "offset", 0, int(^uint(0)>>1))
	if err != nil {
		writeError(w, err)
		return
	}
	customers, err := s.db.ListCustomers(r.Context(), limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.WriteJSONOK(w, customers)
}

type customerResponse struct {
	analytics.Customer
	Visits []analytics.Visit `json:"visits"`
}

func (s *Server) getCustomer(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	c, err := s.db.GetCustomer(r.Context(), id)
	if errors.Is(err, db.ErrNotFound) {
		httputil.NotFound(w, err.Error())
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}
	visits, err := s.db.VisitsForCustomer(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.WriteJSONOK(w, customerResponse{Customer: c, Visits: visits})
}
