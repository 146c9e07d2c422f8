package lifecycle

import (
	"log/slog"

	"lablink/models"
)

func slogRequest(br *models.BorrowRequest) slog.Attr {
	return slog.Group("request", "id", br.ID, "status", br.Status)
}
