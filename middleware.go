package main

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/contentsquare/tablecheck/log"
)

// statResponseWriter collects the response status code.
// The default of 200 covers handlers that never call WriteHeader.
type statResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *statResponseWriter) WriteHeader(statusCode int) {
	rw.statusCode = statusCode
	rw.ResponseWriter.WriteHeader(statusCode)
}

func timingHandler(h http.Handler) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		srw := &statResponseWriter{
			ResponseWriter: rw,
			statusCode:     http.StatusOK,
		}
		startTime := time.Now()

		h.ServeHTTP(srw, r)

		d := time.Since(startTime)
		log.Infof("%s %s - %d (%s)", r.Method, r.URL.Path, srw.statusCode, d)
		statusCodes.With(prometheus.Labels{
			"path": r.URL.Path,
			"code": strconv.Itoa(srw.statusCode),
		}).Inc()
	})
}

type gzipResponseWriter struct {
	http.ResponseWriter
	zw *gzip.Writer
}

func (rw *gzipResponseWriter) Write(b []byte) (int, error) {
	return rw.zw.Write(b)
}

// gzipHandler compresses responses for clients that accept gzip.
// /metrics is left alone, promhttp negotiates its own compression.
func gzipHandler(h http.Handler) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" || !strings.Contains(r.Header.Get("Accept-Encoding"), "gzip") {
			h.ServeHTTP(rw, r)
			return
		}

		rw.Header().Set("Content-Encoding", "gzip")
		zw := gzip.NewWriter(rw)
		defer func() {
			if err := zw.Close(); err != nil {
				log.Errorf("cannot close gzip writer: %s", err)
			}
		}()
		h.ServeHTTP(&gzipResponseWriter{ResponseWriter: rw, zw: zw}, r)
	})
}
