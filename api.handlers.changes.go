package main

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"go.uber.org/zap"
)

const (
	changesWriteWait  = 10 * time.Second
	changesPongWait   = 60 * time.Second
	changesPingPeriod = (changesPongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
}

// StreamChanges pushes the change events matching `table` and `book_id`
// query parameters to the websocket client until it goes away.
func (api *APIHandler) StreamChanges(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	requestID := GetValueFromContext(r.Context(), RequestIDContextKey)
	if api.notifier == nil {
		errResp := NewAPIError(requestID, http.StatusServiceUnavailable, "changes feed is not available", EmptyData)
		api.sendError(w, r, errResp, "changes feed requested without notifier", nil)
		return
	}

	q := r.URL.Query()
	filter := ChangeFilter{Table: q.Get("table"), BookID: q.Get("book_id")}
	switch filter.Table {
	case "", TableBooks, TableReservations:
	default:
		errResp := NewAPIError(requestID, http.StatusBadRequest, "unknown table", filter.Table)
		api.sendError(w, r, errResp, "changes feed requested on unknown table", nil)
		return
	}

	logger := api.GetLoggerFromContext(r.Context())
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("failed to upgrade the websocket", zap.Error(err))
		return
	}
	defer ws.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	events, err := api.notifier.Subscribe(ctx, filter)
	if err != nil {
		logger.Error("failed to subscribe to changes", zap.Error(err))
		_ = ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "subscription failed"),
			time.Now().Add(changesWriteWait))
		return
	}

	logger.Info("changes client connected",
		zap.String("table", filter.Table),
		zap.String("book.id", filter.BookID),
	)

	// the reader only serves control frames and detects the client leaving.
	go func() {
		defer cancel()
		ws.SetReadLimit(512)
		_ = ws.SetReadDeadline(time.Now().Add(changesPongWait))
		ws.SetPongHandler(func(string) error {
			return ws.SetReadDeadline(time.Now().Add(changesPongWait))
		})
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(changesPingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.Info("changes client disconnected")
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			_ = ws.SetWriteDeadline(time.Now().Add(changesWriteWait))
			if err := ws.WriteJSON(ev); err != nil {
				logger.Warn("failed to push change event", zap.Error(err))
				return
			}
		case <-ticker.C:
			if err := ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(changesWriteWait)); err != nil {
				return
			}
		}
	}
}
