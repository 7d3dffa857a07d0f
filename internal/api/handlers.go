package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/insight-back/internal/vendors"
	"github.com/insight-back/pkg/models"
)

// handleListPredictions serves one page of predictions. A refresh=true
// query drops the cached page before fetching.
func (s *Server) handleListPredictions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := vendors.ListOptions{
		Symbol:   q.Get("symbol"),
		Ordering: q.Get("ordering"),
		Limit:    intParam(q.Get("limit"), 25),
		Offset:   intParam(q.Get("offset"), 0),
	}

	if q.Get("refresh") == "true" {
		if err := s.agg.InvalidatePredictions(r.Context(), opts); err != nil {
			s.logger.WithError(err).Warn("Failed to invalidate predictions cache")
		}
	}

	page, cached, err := s.agg.Predictions(r.Context(), opts)
	if err != nil {
		s.respondVendorError(w, err)
		return
	}

	s.respondJSON(w, http.StatusOK, models.PredictionsResponse{
		Predictions: page.Results,
		Count:       page.Count,
		Cached:      cached,
	})
}

// handleGetPrediction serves the current prediction for one symbol
func (s *Server) handleGetPrediction(w http.ResponseWriter, r *http.Request) {
	symbol := mux.Vars(r)["symbol"]

	prediction, err := s.agg.Prediction(r.Context(), symbol)
	if err != nil {
		s.respondVendorError(w, err)
		return
	}

	s.respondJSON(w, http.StatusOK, prediction)
}

// handleSearchTickers serves ticker search results
func (s *Server) handleSearchTickers(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("search")
	if query == "" {
		s.respondJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "search parameter required"})
		return
	}

	tickers, err := s.agg.SearchTickers(r.Context(), query)
	if err != nil {
		s.respondVendorError(w, err)
		return
	}

	s.respondJSON(w, http.StatusOK, models.TickersResponse{Tickers: tickers, Count: len(tickers)})
}

// handleGetQuote serves the current quote for a symbol
func (s *Server) handleGetQuote(w http.ResponseWriter, r *http.Request) {
	symbol := mux.Vars(r)["symbol"]

	if r.URL.Query().Get("refresh") == "true" {
		if err := s.agg.InvalidateQuote(r.Context(), symbol); err != nil {
			s.logger.WithError(err).Warn("Failed to invalidate quote cache")
		}
	}

	quote, err := s.agg.Quote(r.Context(), symbol)
	if err != nil {
		s.respondVendorError(w, err)
		return
	}

	s.respondJSON(w, http.StatusOK, quote)
}

// handleGetHistory serves a historical price series
func (s *Server) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	symbol := mux.Vars(r)["symbol"]
	q := r.URL.Query()

	interval := q.Get("interval")
	if interval == "" {
		interval = "1d"
	}
	span := q.Get("range")
	if span == "" {
		span = "3mo"
	}

	history, err := s.agg.History(r.Context(), symbol, interval, span)
	if err != nil {
		s.respondVendorError(w, err)
		return
	}

	s.respondJSON(w, http.StatusOK, history)
}

// handleGetProfile serves company profile data
func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	symbol := mux.Vars(r)["symbol"]

	profile, err := s.agg.Profile(r.Context(), symbol)
	if err != nil {
		s.respondVendorError(w, err)
		return
	}

	s.respondJSON(w, http.StatusOK, profile)
}

// handleGetIndicator serves a technical indicator series
func (s *Server) handleGetIndicator(w http.ResponseWriter, r *http.Request) {
	symbol := mux.Vars(r)["symbol"]
	q := r.URL.Query()

	indicator := q.Get("type")
	if indicator == "" {
		indicator = "sma"
	}
	interval := q.Get("interval")
	if interval == "" {
		interval = "1d"
	}

	series, err := s.agg.Indicator(r.Context(), symbol, indicator, interval)
	if err != nil {
		s.respondVendorError(w, err)
		return
	}

	s.respondJSON(w, http.StatusOK, series)
}

// handleGetBars serves historical OHLCV bars from the brokerage vendor
func (s *Server) handleGetBars(w http.ResponseWriter, r *http.Request) {
	symbol := mux.Vars(r)["symbol"]
	q := r.URL.Query()

	timeframe := q.Get("timeframe")
	if timeframe == "" {
		timeframe = "1Day"
	}

	var start, end time.Time
	if v := q.Get("start"); v != "" {
		start, _ = time.Parse(time.RFC3339, v)
	}
	if v := q.Get("end"); v != "" {
		end, _ = time.Parse(time.RFC3339, v)
	}

	bars, err := s.agg.Bars(r.Context(), symbol, timeframe, start, end, intParam(q.Get("limit"), 100))
	if err != nil {
		s.respondVendorError(w, err)
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"symbol": symbol,
		"bars":   bars,
		"count":  len(bars),
	})
}

// handleGetNews serves one page of historical news
func (s *Server) handleGetNews(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var symbols []string
	if raw := q.Get("symbols"); raw != "" {
		symbols = strings.Split(raw, ",")
	}

	page, err := s.agg.News(r.Context(), symbols, intParam(q.Get("limit"), 20), q.Get("page_token"))
	if err != nil {
		s.respondVendorError(w, err)
		return
	}

	s.respondJSON(w, http.StatusOK, models.NewsResponse{
		Items:     page.Items,
		Count:     len(page.Items),
		NextToken: page.NextToken,
	})
}

// handleRecentNews serves the hub's bounded recent-news list (the same
// snapshot new WebSocket clients receive)
func (s *Server) handleRecentNews(w http.ResponseWriter, r *http.Request) {
	items := s.hub.Recent()
	s.respondJSON(w, http.StatusOK, models.NewsResponse{Items: items, Count: len(items)})
}

// handleGenerateInsight generates a text analysis for a symbol
func (s *Server) handleGenerateInsight(w http.ResponseWriter, r *http.Request) {
	symbol := mux.Vars(r)["symbol"]

	insight, err := s.agg.Insight(r.Context(), symbol)
	if err != nil {
		s.respondVendorError(w, err)
		return
	}

	s.respondJSON(w, http.StatusOK, insight)
}

// handleSynthesizeSpeech converts text to audio and streams the raw bytes
func (s *Server) handleSynthesizeSpeech(w http.ResponseWriter, r *http.Request) {
	var req models.SpeechRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "invalid request body"})
		return
	}
	if req.Text == "" {
		s.respondJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "text is required"})
		return
	}

	clip, err := s.agg.Narrate(r.Context(), req)
	if err != nil {
		s.respondVendorError(w, err)
		return
	}

	w.Header().Set("Content-Type", clip.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(clip.Data)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(clip.Data); err != nil {
		s.logger.WithError(err).Error("Failed to write audio response")
	}
}

// handleStreamStatus reports the news streaming session state
func (s *Server) handleStreamStatus(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, s.stream.Status())
}

// handleStreamConnect opens the news streaming session. Reconnection after
// an error is this deliberate user action; nothing reconnects on its own.
func (s *Server) handleStreamConnect(w http.ResponseWriter, r *http.Request) {
	if err := s.stream.Connect(r.Context()); err != nil {
		s.respondJSON(w, http.StatusBadGateway, models.ErrorResponse{
			Error:   "failed to connect news stream",
			Message: err.Error(),
		})
		return
	}

	s.respondJSON(w, http.StatusOK, s.stream.Status())
}

// handleStreamDisconnect closes the news streaming session
func (s *Server) handleStreamDisconnect(w http.ResponseWriter, r *http.Request) {
	s.stream.Disconnect()
	s.respondJSON(w, http.StatusOK, s.stream.Status())
}

// intParam parses a positive integer query parameter with a fallback
func intParam(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return fallback
	}
	return v
}
