// cmd/server/main.go
package main

import (
	"context"
	"net/http"
	"time"

	"github.com/jason-s-yu/typerace/internal/cache"
	"github.com/jason-s-yu/typerace/internal/config"
	"github.com/jason-s-yu/typerace/internal/handlers"
	"github.com/jason-s-yu/typerace/internal/middleware"
	"github.com/jason-s-yu/typerace/internal/race"
	"github.com/jason-s-yu/typerace/internal/text"
	"github.com/sirupsen/logrus"
)

func main() {
	cfg := config.Load()

	logger := logrus.New()
	logger.SetLevel(cfg.LogLevel)

	hub := handlers.NewHub(logger)
	sess := race.NewSession(hub, text.NewWikipediaSource(cfg.WikipediaAPIURL), logger)
	sess.MinTextLength = cfg.TextMinLength
	sess.CountdownSeconds = cfg.CountdownSeconds

	// The event log is optional; without Redis the server runs with recording off.
	if cfg.RedisAddr != "" {
		rdb, err := cache.Connect(context.Background(), cfg.RedisAddr, cfg.RedisDB)
		if err != nil {
			logger.Warnf("race event log disabled: %v", err)
		} else {
			defer rdb.Close()
			pub := cache.NewPublisher(rdb, cfg.QueueName)
			sess.RecordFn = func(rec cache.RaceEventRecord) {
				go func() {
					ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
					defer cancel()
					if err := pub.Publish(ctx, rec); err != nil {
						logger.WithField("room", rec.RoomID).Warnf("failed to record %s: %v", rec.ActionType, err)
					}
				}()
			}
			logger.Infof("Recording race events to %s", pub.Queue)
		}
	}

	mux := http.NewServeMux()
	logged := middleware.LogMiddleware(logger)

	mux.Handle("/race/ws", logged(handlers.RaceWSHandler(logger, hub, sess)))
	mux.Handle(handlers.RoomAvailabilityPattern, logged(handlers.RoomAvailabilityHandler(sess.Store)))

	addr := ":" + cfg.Port
	logger.Infof("Running on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Fatalf("server exited: %v", err)
	}
}
