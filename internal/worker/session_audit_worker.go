package worker

import (
	"github.com/spec-kit/portfolio-admin/internal/service"
)

// StartSessionAuditWorker registers the session lifecycle audit handlers.
func StartSessionAuditWorker(auditService *service.SessionAuditService) {
	if auditService == nil {
		return
	}
	auditService.RegisterHandlers()
}
