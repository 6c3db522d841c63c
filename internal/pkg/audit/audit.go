package audit

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/PayFox/app/models"
	"github.com/ManuelReschke/PayFox/app/repository"
)

// writeTimeout bounds a single log insert so a slow database never holds a
// response hostage.
const writeTimeout = 5 * time.Second

// Logger records API calls, authentication decisions and webhook attempts
// into the insert-only log tables. A failed insert is reported on the process
// log and swallowed; it never fails the request being audited.
type Logger struct {
	repo repository.LogRepository
}

func NewLogger(repo repository.LogRepository) *Logger {
	return &Logger{repo: repo}
}

func (l *Logger) LogAPI(ctx context.Context, entry *models.APILog) {
	l.save(ctx, entry)
}

func (l *Logger) LogAuth(ctx context.Context, entry *models.AuthLog) {
	l.save(ctx, entry)
}

func (l *Logger) LogWebhook(ctx context.Context, entry *models.WebhookLog) {
	l.save(ctx, entry)
}

func (l *Logger) save(ctx context.Context, entry models.LogEntry) {
	if l == nil || l.repo == nil {
		return
	}
	// the request context may already be cancelled once the response is out
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)
	defer cancel()

	if err := l.repo.SaveLog(ctx, entry); err != nil {
		log.Errorf("[Audit] Failed to write %s log: %v", entry.LogKind(), err)
	}
}
