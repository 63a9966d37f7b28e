package handlers

import (
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"
)

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// WithLoggingAndErrorHandling logs every request and turns panics into a
// 500 response.
func WithLoggingAndErrorHandling(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		defer func() {
			if err := recover(); err != nil {
				log.WithFields(log.Fields{
					"method": r.Method,
					"path":   r.URL.Path,
				}).Errorf("Panic recovered: %v", err)
				http.Error(rec, "Internal Server Error", http.StatusInternalServerError)
			}
			log.WithFields(log.Fields{
				"method":   r.Method,
				"path":     r.URL.Path,
				"status":   rec.status,
				"duration": time.Since(start),
			}).Info("Handled request")
		}()
		next.ServeHTTP(rec, r)
	})
}
