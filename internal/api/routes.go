package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"bank-churn/backend/internal/artifact"
	"bank-churn/backend/internal/classifier"
	"bank-churn/backend/internal/features"
	"bank-churn/backend/internal/prediction"
	"bank-churn/backend/internal/util"
)

// Config defines server dependencies.
type Config struct {
	AllowedOrigins []string
	Artifact       *artifact.Artifact
	ClassifierKind classifier.Kind
}

// Server wires HTTP handlers to the prediction service.
type Server struct {
	service        *prediction.Service
	allowedOrigins []string
	artifact       *artifact.Artifact
	classifierKind classifier.Kind
	metrics        *metrics
}

const (
	requestIDHeader = "X-Request-ID"
	requestIDKey    = "request_id"
)

// Error kinds reported in ErrorResponse.Kind.
const (
	kindRequest    = "request"
	kindValidation = "validation"
	kindEncoding   = "encoding"
	kindPrediction = "prediction"
)

var numericFields = map[string]struct{}{
	features.CreditScore:     {},
	features.Age:             {},
	features.Tenure:          {},
	features.Balance:         {},
	features.NumOfProducts:   {},
	features.EstimatedSalary: {},
}

type apiError struct {
	status  int
	kind    string
	field   string
	err     error
	outcome string
}

// NewServer constructs the API server around a ready prediction service.
func NewServer(cfg Config, service *prediction.Service) (*Server, error) {
	if service == nil {
		return nil, errors.New("prediction service required")
	}
	kind := cfg.ClassifierKind
	if kind == "" {
		kind = classifier.KindLocal
	}
	return &Server{
		service:        service,
		allowedOrigins: cfg.AllowedOrigins,
		artifact:       cfg.Artifact,
		classifierKind: kind,
		metrics:        newMetrics(),
	}, nil
}

// Router configures gin routes.
func (s *Server) Router() (*gin.Engine, error) {
	r := gin.Default()

	corsCfg := cors.DefaultConfig()
	if len(s.allowedOrigins) == 0 {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowCredentials = true
		corsCfg.AllowOrigins = s.allowedOrigins
	}
	corsCfg.AllowHeaders = []string{"Origin", "Content-Type", "Accept", requestIDHeader}
	corsCfg.ExposeHeaders = []string{requestIDHeader}
	corsCfg.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	r.Use(cors.New(corsCfg))
	r.Use(requestID())

	r.GET("/metrics", gin.WrapH(s.metrics.handler()))
	r.GET("/api/healthz", s.handleHealth)
	r.GET("/api/config", s.handleConfig)

	api := r.Group("/api")
	{
		api.POST("/predict", s.handlePredict)
		api.POST("/encode", s.handleEncode)
		api.GET("/predict/ws", s.handlePredictStream)
	}

	return r, nil
}

func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(requestIDHeader))
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleConfig(c *gin.Context) {
	encoder := s.service.Encoder()
	c.JSON(http.StatusOK, gin.H{
		"features":      features.ExpectedFeatures[:],
		"encoding_mode": encoder.Mode(),
		"table_version": encoder.Table().Version,
		"threshold":     prediction.Threshold,
		"fields":        formDomains(encoder.Table()),
		"classifier":    s.classifierKind,
		"artifact":      s.artifact,
		"messages": gin.H{
			string(prediction.LabelLeave): prediction.LabelLeave.Message(),
			string(prediction.LabelStay):  prediction.LabelStay.Message(),
		},
	})
}

func (s *Server) handlePredict(c *gin.Context) {
	id := c.GetString(requestIDKey)
	fields, apiErr := readFields(c)
	if apiErr != nil {
		s.metrics.observe(apiErr.outcome, 0)
		s.renderError(c, id, apiErr)
		return
	}
	resp, apiErr := s.predict(c.Request.Context(), id, fields)
	if apiErr != nil {
		s.renderError(c, id, apiErr)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleEncode(c *gin.Context) {
	id := c.GetString(requestIDKey)
	fields, apiErr := readFields(c)
	if apiErr != nil {
		s.renderError(c, id, apiErr)
		return
	}
	raw, apiErr := decodeForm(fields)
	if apiErr != nil {
		s.renderError(c, id, apiErr)
		return
	}
	encoder := s.service.Encoder()
	frame, err := encoder.Expand(raw)
	if err != nil {
		s.renderError(c, id, encodingError(err))
		return
	}
	c.JSON(http.StatusOK, EncodeResponse{
		Columns:      features.ExpectedFeatures[:],
		Features:     features.Align(frame).Slice(),
		Dropped:      features.Dropped(frame),
		EncodingMode: string(encoder.Mode()),
		TableVersion: encoder.Table().Version,
	})
}

// predict runs one form submission through validation, encoding and inference.
func (s *Server) predict(ctx context.Context, id string, fields map[string]any) (PredictResponse, *apiError) {
	timer := util.StartTimer()
	entry := logrus.WithField("request_id", id)

	raw, apiErr := decodeForm(fields)
	if apiErr != nil {
		s.metrics.observe(apiErr.outcome, timer.Elapsed())
		entry.WithError(apiErr.err).Info("rejected churn prediction request")
		return PredictResponse{}, apiErr
	}

	result, err := s.service.Predict(ctx, raw)
	if err != nil {
		var predErr *prediction.PredictionError
		if errors.As(err, &predErr) {
			apiErr = &apiError{
				status:  http.StatusBadGateway,
				kind:    kindPrediction,
				err:     fmt.Errorf("An error occurred: %v", predErr.Err),
				outcome: outcomePrediction,
			}
		} else {
			apiErr = encodingError(err)
		}
		s.metrics.observe(apiErr.outcome, timer.Elapsed())
		entry.WithError(err).Warn("churn prediction failed")
		return PredictResponse{}, apiErr
	}

	mode := s.service.Encoder().Mode()
	outcome := outcomeStay
	if result.Churn() {
		outcome = outcomeLeave
	}
	s.metrics.observe(outcome, timer.Elapsed())
	entry.WithFields(logrus.Fields{
		"mode":        mode,
		"probability": result.Probability,
		"label":       result.Label,
		"latency_ms":  timer.ElapsedMs(),
	}).Info("churn prediction")
	return FromResult(id, mode, result, timer.ElapsedMs()), nil
}

// readFields collects the submitted fields from a JSON body or an HTML form post.
func readFields(c *gin.Context) (map[string]any, *apiError) {
	switch c.ContentType() {
	case binding.MIMEJSON:
		var fields map[string]any
		if err := c.ShouldBindJSON(&fields); err != nil {
			return nil, &apiError{status: http.StatusBadRequest, kind: kindRequest, err: fmt.Errorf("invalid JSON body: %w", err), outcome: outcomeInvalid}
		}
		return fields, nil
	case binding.MIMEMultipartPOSTForm:
		if err := c.Request.ParseMultipartForm(1 << 20); err != nil {
			return nil, &apiError{status: http.StatusBadRequest, kind: kindRequest, err: fmt.Errorf("invalid form: %w", err), outcome: outcomeInvalid}
		}
	default:
		if err := c.Request.ParseForm(); err != nil {
			return nil, &apiError{status: http.StatusBadRequest, kind: kindRequest, err: fmt.Errorf("invalid form: %w", err), outcome: outcomeInvalid}
		}
	}
	return formFields(c.Request.PostForm), nil
}

// formFields converts posted form values into the loosely typed shape features.Decode expects.
// Unparseable numbers are kept as strings so the encoder reports them as the wrong kind.
func formFields(values url.Values) map[string]any {
	fields := make(map[string]any, len(values))
	for _, name := range features.ExpectedFeatures {
		if _, ok := values[name]; !ok {
			continue
		}
		value := strings.TrimSpace(values.Get(name))
		if _, numeric := numericFields[name]; numeric {
			if f, err := strconv.ParseFloat(value, 64); err == nil {
				fields[name] = f
				continue
			}
		}
		fields[name] = value
	}
	return fields
}

// decodeForm decodes fields and enforces the form's domain constraints.
func decodeForm(fields map[string]any) (features.RawInput, *apiError) {
	raw, err := features.Decode(fields)
	if err != nil {
		return features.RawInput{}, encodingError(err)
	}
	if err := binding.Validator.ValidateStruct(FormInputFrom(raw)); err != nil {
		apiErr := &apiError{status: http.StatusUnprocessableEntity, kind: kindValidation, err: err, outcome: outcomeInvalid}
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			apiErr.field = verrs[0].Field()
			apiErr.err = fmt.Errorf("%s must satisfy %s=%s", verrs[0].Field(), verrs[0].Tag(), verrs[0].Param())
		}
		return features.RawInput{}, apiErr
	}
	return raw, nil
}

func encodingError(err error) *apiError {
	apiErr := &apiError{status: http.StatusBadRequest, kind: kindEncoding, err: err, outcome: outcomeEncoding}
	var encErr *features.EncodingError
	if errors.As(err, &encErr) {
		apiErr.field = encErr.Field
	}
	return apiErr
}

func (e *apiError) response(id string) ErrorResponse {
	return ErrorResponse{RequestID: id, Kind: e.kind, Field: e.field, Error: e.err.Error()}
}

func (s *Server) renderError(c *gin.Context, id string, apiErr *apiError) {
	c.JSON(apiErr.status, apiErr.response(id))
}
