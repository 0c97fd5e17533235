package handler

import (
	"net/http"

	"github.com/zeromicro/go-zero/rest"

	"tradeloop/pkg/trader"
)

// StatusSource publishes the latest loop snapshot.
type StatusSource interface {
	Status() *trader.Status
}

func RegisterHandlers(server *rest.Server, src StatusSource) {
	server.AddRoutes(
		[]rest.Route{
			{
				Method:  http.MethodGet,
				Path:    "/status",
				Handler: StatusHandler(src),
			},
			{
				Method:  http.MethodGet,
				Path:    "/stats",
				Handler: StatsHandler(src),
			},
			{
				Method:  http.MethodGet,
				Path:    "/periods",
				Handler: PeriodsHandler(src),
			},
		},
	)
}
