package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/zeromicro/go-zero/rest/httpx"

	"tradeloop/pkg/market"
	"tradeloop/pkg/stats"
)

var errNoStatus = errors.New("status not published yet")

// StatsResponse is the body of GET /stats.
type StatsResponse struct {
	Selector string       `json:"selector"`
	Mode     string       `json:"mode"`
	Report   stats.Report `json:"report"`
	Lines    []string     `json:"lines"`
}

// PeriodsResponse is the body of GET /periods.
type PeriodsResponse struct {
	Selector string          `json:"selector"`
	Current  *market.Period  `json:"current,omitempty"`
	Periods  []market.Period `json:"periods"`
}

func StatusHandler(src StatusSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s := src.Status()
		if s == nil {
			httpx.ErrorCtx(r.Context(), w, errNoStatus)
			return
		}
		httpx.OkJsonCtx(r.Context(), w, s)
	}
}

func StatsHandler(src StatusSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s := src.Status()
		if s == nil {
			httpx.ErrorCtx(r.Context(), w, errNoStatus)
			return
		}
		httpx.OkJsonCtx(r.Context(), w, StatsResponse{
			Selector: s.Selector,
			Mode:     s.Mode,
			Report:   s.Report,
			Lines:    s.Report.Lines(),
		})
	}
}

// PeriodsHandler serves the most recent closed periods. ?limit=N trims the
// list.
func PeriodsHandler(src StatusSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s := src.Status()
		if s == nil {
			httpx.ErrorCtx(r.Context(), w, errNoStatus)
			return
		}
		periods := s.Periods
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 0 {
				httpx.ErrorCtx(r.Context(), w, errors.New("limit must be a non-negative integer"))
				return
			}
			if n < len(periods) {
				periods = periods[:n]
			}
		}
		if periods == nil {
			periods = []market.Period{}
		}
		httpx.OkJsonCtx(r.Context(), w, PeriodsResponse{
			Selector: s.Selector,
			Current:  s.Current,
			Periods:  periods,
		})
	}
}
