package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/radiusdt/leadtrack/internal/analytics"
	"github.com/radiusdt/leadtrack/internal/config"
	"github.com/radiusdt/leadtrack/internal/database"
	"github.com/radiusdt/leadtrack/internal/metrics"
	"github.com/radiusdt/leadtrack/internal/models"
	"github.com/radiusdt/leadtrack/internal/storage"
	"github.com/radiusdt/leadtrack/internal/tracking"
)

// Dependencies holds all external dependencies for the server.
type Dependencies struct {
	DB      *database.PostgresDB
	Redis   *database.RedisDB
	Config  *config.Config
	Logger  *zap.Logger
	Metrics *metrics.Metrics
}

// Server wraps HTTP handlers and tracking services.
type Server struct {
	postbackService  *tracking.PostbackService
	reportingService *tracking.ReportingService
	productService   *tracking.ProductService
	analyticsService *analytics.Service
	leads            storage.LeadStore
	stats            storage.StatsRepo
	logger           *zap.Logger
}

// NewServer constructs a new http.Handler with all routes registered.
func NewServer(deps *Dependencies) http.Handler {
	loc := deps.Config.Tracking.Location()

	// Initialize repositories
	var leadStore storage.LeadStore
	var productRepo storage.ProductRepo
	var statsRepo storage.StatsRepo
	var visitRepo storage.VisitRepo

	if deps.DB != nil {
		leadStore = storage.NewPostgresLeadStore(deps.DB.Pool, deps.Config.Tracking.Timezone)
		productRepo = storage.NewPostgresProductRepo(deps.DB.Pool)
		statsRepo = storage.NewPostgresStatsRepo(deps.DB.Pool)
		visitRepo = storage.NewPostgresVisitRepo(deps.DB.Pool)
	} else {
		leadStore = storage.NewInMemoryLeadStore(loc)
		productRepo = storage.NewInMemoryProductRepo()
		statsRepo = storage.NewInMemoryStatsRepo()
		visitRepo = storage.NewInMemoryVisitRepo()
	}

	var quota analytics.RequestQuota
	if deps.Redis != nil {
		quota = analytics.NewRedisQuota(deps.Redis.Client, deps.Config.Analytics.DailyRequestLimit, loc)
	} else {
		quota = analytics.NewInMemoryQuota(deps.Config.Analytics.DailyRequestLimit, loc)
	}

	// Initialize services
	statsMaintainer := tracking.NewStatsMaintainer(statsRepo, deps.Logger, deps.Metrics)
	postbackSvc := tracking.NewPostbackService(leadStore, productRepo, statsMaintainer, deps.Logger, deps.Metrics, loc)
	reportingSvc := tracking.NewReportingService(leadStore, visitRepo, loc)
	productSvc := tracking.NewProductService(productRepo)
	analyticsSvc := analytics.NewService(deps.Config.Analytics, visitRepo, quota, deps.Logger, deps.Metrics, loc)

	s := &Server{
		postbackService:  postbackSvc,
		reportingService: reportingSvc,
		productService:   productSvc,
		analyticsService: analyticsSvc,
		leads:            leadStore,
		stats:            statsRepo,
		logger:           deps.Logger,
	}

	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("/health", s.handleHealth)

	// Prometheus metrics
	if deps.Config.Metrics.Enabled {
		mux.Handle(deps.Config.Metrics.Path, metrics.Handler())
	}

	// Postback intake
	mux.HandleFunc("/postback", s.handlePostback(""))
	mux.HandleFunc("/postback/lead", s.handlePostback(models.TypeLead))
	mux.HandleFunc("/postback/conversao", s.handlePostback(models.TypeConversao))
	mux.HandleFunc("/postback/trash", s.handlePostback(models.TypeTrash))
	mux.HandleFunc("/postback/cancel", s.handlePostback(models.TypeCancel))

	// Lead queries and reporting
	mux.HandleFunc("/api/conversions", s.handleConversions)
	mux.HandleFunc("/api/conversions/dates", s.handleConversionDates)
	mux.HandleFunc("/api/extract", s.handleExtract)
	mux.HandleFunc("/api/hierarchy", s.handleHierarchy)
	mux.HandleFunc("/api/stats", s.handleDailyStats)
	mux.HandleFunc("/api/leads/", s.handleLeadsByDate)
	mux.HandleFunc("/api/campaign-stats", s.handleCampaignStats)
	mux.HandleFunc("/api/metrics/sub2", s.handleSub2Metrics)
	mux.HandleFunc("/api/metrics/hours", s.handleHourlyMetrics)

	// Products
	mux.HandleFunc("/api/products", s.handleProducts)
	mux.HandleFunc("/api/products/", s.handleProductByID)
	mux.HandleFunc("/api/accounts", s.handleAccounts)

	// Admin
	mux.HandleFunc("/api/clear-all", s.handleClearAll)

	// Third-party analytics
	mux.HandleFunc("/api/clarity/requests-count", s.handleRequestsCount)
	mux.HandleFunc("/api/clarity/update", s.handleClarityUpdate)
	mux.HandleFunc("/api/analytics/status", s.handleAnalyticsStatus)
	mux.HandleFunc("/api/analytics/update", s.handleAnalyticsUpdate)

	return mux
}

// ---- Health Check ----

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// ---- Postback Intake ----

// handlePostback accepts tracker callbacks. Senders use GET with query
// parameters; POST with form fields is accepted for manual replays.
func (s *Server) handlePostback(ntype string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodPost {
			s.errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		if r.Method == http.MethodPost {
			if err := r.ParseForm(); err != nil {
				s.errorResponse(w, "invalid form", http.StatusBadRequest)
				return
			}
		}

		params := make(map[string]string, len(r.URL.Query()))
		for key, values := range r.URL.Query() {
			if len(values) > 0 {
				params[key] = values[0]
			}
		}
		if r.Method == http.MethodPost {
			for key, values := range r.PostForm {
				if len(values) > 0 {
					params[key] = values[0]
				}
			}
		}

		result, err := s.postbackService.Process(r.Context(), params, ntype)
		if err != nil {
			s.logger.Error("postback failed", zap.Error(err))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusInternalServerError)
			_ = json.NewEncoder(w).Encode(result)
			return
		}

		s.jsonResponse(w, result)
	}
}

// ---- Lead Queries ----

func (s *Server) leadFilterFromQuery(r *http.Request) storage.LeadFilter {
	q := r.URL.Query()
	f := storage.LeadFilter{
		Date:      q.Get("date"),
		StartDate: q.Get("startDate"),
		EndDate:   q.Get("endDate"),
		OfferID:   q.Get("offerId"),
		Category:  q.Get("category"),
	}
	if f.StartDate != "" && f.EndDate == "" {
		f.EndDate = f.StartDate
	}
	return f
}

func (s *Server) handleConversions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	list, err := s.leads.List(r.Context(), s.leadFilterFromQuery(r))
	if err != nil {
		s.logger.Error("failed to list conversions", zap.Error(err))
		s.errorResponse(w, "failed to list", http.StatusInternalServerError)
		return
	}
	s.jsonResponse(w, list)
}

// handleExtract is handleConversions with "today"/"hoje" date keywords.
func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	f := s.leadFilterFromQuery(r)
	if f.Date == "today" || f.Date == "hoje" {
		f.Date = s.reportingService.Today()
	}

	list, err := s.leads.List(r.Context(), f)
	if err != nil {
		s.logger.Error("failed to extract leads", zap.Error(err))
		s.errorResponse(w, "failed to list", http.StatusInternalServerError)
		return
	}
	s.jsonResponse(w, list)
}

func (s *Server) handleLeadsByDate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	date := strings.TrimPrefix(r.URL.Path, "/api/leads/")
	if date == "" {
		http.NotFound(w, r)
		return
	}
	if date == "today" || date == "hoje" {
		date = s.reportingService.Today()
	}

	list, err := s.reportingService.LeadsForDate(r.Context(), date)
	if err != nil {
		s.logger.Error("failed to list leads", zap.Error(err), zap.String("date", date))
		s.errorResponse(w, "failed to list", http.StatusInternalServerError)
		return
	}
	s.jsonResponse(w, list)
}

func (s *Server) handleConversionDates(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	dates, err := s.reportingService.DatesWithCounts(r.Context())
	if err != nil {
		s.logger.Error("failed to list dates", zap.Error(err))
		s.errorResponse(w, "failed to list", http.StatusInternalServerError)
		return
	}
	s.jsonResponse(w, dates)
}

// ---- Reporting ----

func (s *Server) handleHierarchy(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	date := r.URL.Query().Get("date")
	if date == "" || date == "today" || date == "hoje" {
		date = s.reportingService.Today()
	}

	report, err := s.reportingService.Hierarchy(r.Context(), date)
	if err != nil {
		s.logger.Error("failed to build hierarchy report", zap.Error(err), zap.String("date", date))
		s.errorResponse(w, "failed to build report", http.StatusInternalServerError)
		return
	}
	s.jsonResponse(w, report)
}

func (s *Server) handleDailyStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	q := r.URL.Query()
	start := q.Get("startDate")
	end := q.Get("endDate")
	if date := q.Get("date"); date != "" {
		start, end = date, date
	}

	stats, err := s.reportingService.DailyStats(r.Context(), start, end, q.Get("offerId"), q.Get("category"))
	if err != nil {
		s.logger.Error("failed to build daily stats", zap.Error(err))
		s.errorResponse(w, "failed to build stats", http.StatusInternalServerError)
		return
	}
	s.jsonResponse(w, stats)
}

func (s *Server) handleCampaignStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	list, err := s.stats.ListAll(r.Context())
	if err != nil {
		s.logger.Error("failed to list campaign stats", zap.Error(err))
		s.errorResponse(w, "failed to list", http.StatusInternalServerError)
		return
	}
	s.jsonResponse(w, list)
}

func (s *Server) handleSub2Metrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	q := r.URL.Query()
	start := q.Get("startDate")
	end := q.Get("endDate")
	if date := q.Get("date"); date != "" {
		start, end = date, date
	}
	if start == "" {
		start = s.reportingService.Today()
		end = start
	}
	if end == "" {
		end = start
	}

	report, err := s.reportingService.Sub2Metrics(r.Context(), start, end)
	if err != nil {
		s.logger.Error("failed to build sub2 metrics", zap.Error(err))
		s.errorResponse(w, "failed to build metrics", http.StatusInternalServerError)
		return
	}
	s.jsonResponse(w, report)
}

func (s *Server) handleHourlyMetrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	date := r.URL.Query().Get("date")
	if date == "" || date == "today" || date == "hoje" {
		date = s.reportingService.Today()
	}

	hours, err := s.reportingService.HourlyDistribution(r.Context(), date)
	if err != nil {
		s.logger.Error("failed to build hourly metrics", zap.Error(err), zap.String("date", date))
		s.errorResponse(w, "failed to build metrics", http.StatusInternalServerError)
		return
	}
	s.jsonResponse(w, hours)
}

// ---- Products CRUD ----

func (s *Server) handleProducts(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		list, err := s.productService.List(r.Context())
		if err != nil {
			s.logger.Error("failed to list products", zap.Error(err))
			s.errorResponse(w, "failed to list", http.StatusInternalServerError)
			return
		}
		s.jsonResponse(w, list)

	case http.MethodPost:
		var p models.Product
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			s.errorResponse(w, "invalid json", http.StatusBadRequest)
			return
		}
		if err := s.productService.Create(r.Context(), &p); err != nil {
			if errors.Is(err, tracking.ErrInvalidProduct) {
				s.errorResponse(w, err.Error(), http.StatusBadRequest)
				return
			}
			s.logger.Error("failed to create product", zap.Error(err))
			s.errorResponse(w, "failed to save", http.StatusInternalServerError)
			return
		}
		s.jsonResponse(w, p)

	default:
		s.errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleProductByID(w http.ResponseWriter, r *http.Request) {
	idStr := strings.TrimPrefix(r.URL.Path, "/api/products/")
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil || id <= 0 {
		http.NotFound(w, r)
		return
	}

	switch r.Method {
	case http.MethodPut:
		var p models.Product
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			s.errorResponse(w, "invalid json", http.StatusBadRequest)
			return
		}
		p.ID = id
		found, err := s.productService.Update(r.Context(), &p)
		if err != nil {
			if errors.Is(err, tracking.ErrInvalidProduct) {
				s.errorResponse(w, err.Error(), http.StatusBadRequest)
				return
			}
			s.logger.Error("failed to update product", zap.Error(err), zap.Int64("id", id))
			s.errorResponse(w, "failed to save", http.StatusInternalServerError)
			return
		}
		if !found {
			http.NotFound(w, r)
			return
		}
		s.jsonResponse(w, p)

	case http.MethodDelete:
		found, err := s.productService.Delete(r.Context(), id)
		if err != nil {
			s.logger.Error("failed to delete product", zap.Error(err), zap.Int64("id", id))
			s.errorResponse(w, "failed to delete", http.StatusInternalServerError)
			return
		}
		if !found {
			http.NotFound(w, r)
			return
		}
		s.jsonResponse(w, map[string]bool{"success": true})

	default:
		s.errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleAccounts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	accounts, err := s.productService.Accounts(r.Context())
	if err != nil {
		s.logger.Error("failed to list accounts", zap.Error(err))
		s.errorResponse(w, "failed to list", http.StatusInternalServerError)
		return
	}
	s.jsonResponse(w, accounts)
}

// ---- Admin ----

func (s *Server) handleClearAll(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete && r.Method != http.MethodGet {
		s.errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := s.leads.ClearAll(r.Context()); err != nil {
		s.logger.Error("failed to clear leads", zap.Error(err))
		s.errorResponse(w, "failed to clear", http.StatusInternalServerError)
		return
	}
	if err := s.stats.ClearAll(r.Context()); err != nil {
		s.logger.Error("failed to clear campaign stats", zap.Error(err))
		s.errorResponse(w, "failed to clear", http.StatusInternalServerError)
		return
	}

	s.logger.Warn("all tracking data cleared", zap.String("remote_addr", r.RemoteAddr))
	s.jsonResponse(w, map[string]bool{"success": true})
}

// ---- Third-Party Analytics ----

func (s *Server) handleRequestsCount(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	status, err := s.analyticsService.Quota(r.Context())
	if err != nil {
		s.logger.Error("failed to read request quota", zap.Error(err))
		s.errorResponse(w, "failed to read quota", http.StatusInternalServerError)
		return
	}
	s.jsonResponse(w, status)
}

func (s *Server) handleClarityUpdate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	stored, err := s.analyticsService.UpdateFromClarity(r.Context())
	if err != nil {
		if errors.Is(err, analytics.ErrQuotaExceeded) {
			s.errorResponse(w, err.Error(), http.StatusTooManyRequests)
			return
		}
		s.logger.Error("clarity update failed", zap.Error(err))
		s.errorResponse(w, "update failed", http.StatusBadGateway)
		return
	}
	s.jsonResponse(w, map[string]interface{}{"success": true, "stored": stored})
}

func (s *Server) handleAnalyticsStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.jsonResponse(w, s.analyticsService.AnalyticsStatus())
}

func (s *Server) handleAnalyticsUpdate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	stored, err := s.analyticsService.UpdateFromGA(r.Context())
	if err != nil {
		if errors.Is(err, analytics.ErrQuotaExceeded) {
			s.errorResponse(w, err.Error(), http.StatusTooManyRequests)
			return
		}
		s.logger.Error("analytics update failed", zap.Error(err))
		s.errorResponse(w, "update failed", http.StatusBadGateway)
		return
	}
	s.jsonResponse(w, map[string]interface{}{"success": true, "stored": stored})
}

// ---- Helpers ----

func (s *Server) jsonResponse(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) errorResponse(w http.ResponseWriter, message string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
