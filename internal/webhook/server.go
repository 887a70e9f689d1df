package webhook

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Submitter hands accepted messages off for out-of-band processing.
type Submitter interface {
	Submit(msg Message) bool
}

// Server exposes the two webhook operations at one endpoint path:
// verification (GET) and notification intake (POST).
type Server struct {
	verifyToken string
	path        string
	submitter   Submitter
	logger      *log.Logger
}

// ServerOption customizes the server.
type ServerOption func(*Server)

// WithServerLogger overrides the logger used for diagnostics.
func WithServerLogger(logger *log.Logger) ServerOption {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewServer builds the webhook HTTP surface.
func NewServer(verifyToken, path string, submitter Submitter, opts ...ServerOption) *Server {
	if path == "" {
		path = "/webhook"
	}
	s := &Server{
		verifyToken: verifyToken,
		path:        path,
		submitter:   submitter,
		logger:      log.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Register mounts the webhook routes on the router.
func (s *Server) Register(r *gin.Engine) {
	r.GET(s.path, s.handleVerification)
	r.POST(s.path, s.handleNotification)
}

// handleVerification answers the platform's subscription handshake: echo
// the challenge when the pre-shared token matches, reject otherwise. The
// expected token is never included in a response.
func (s *Server) handleVerification(c *gin.Context) {
	token := c.Query("hub.verify_token")
	challenge := c.Query("hub.challenge")

	if token != s.verifyToken {
		s.logger.Printf("webhook: verification rejected")
		c.JSON(http.StatusForbidden, gin.H{"error": "verification failed"})
		return
	}

	s.logger.Printf("webhook: verification succeeded")
	c.String(http.StatusOK, challenge)
}

// handleNotification accepts a push payload, hands every nested message
// off to the dispatcher, and acknowledges immediately without waiting for
// any handler to run.
func (s *Server) handleNotification(c *gin.Context) {
	var note Notification
	if err := c.ShouldBindJSON(&note); err != nil {
		s.logger.Printf("webhook: malformed payload: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	for _, msg := range note.MessageEntries() {
		s.submitter.Submit(msg)
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
