package dispatch

import (
	"fmt"
	"time"

	"ms-fulfillment/internal/logger"
	"ms-fulfillment/internal/models"
)

// CodeGenerator produces the scannable code for an order.
type CodeGenerator interface {
	GenerateEncryptedQR(order *models.Order) ([]byte, error)
}

// ArtifactGenerator renders the deliverable ticket artifact.
type ArtifactGenerator interface {
	Generate(order *models.Order, qrCode []byte) ([]byte, error)
}

// Notifier delivers the artifact to the buyer.
type Notifier interface {
	Notify(order *models.Order, artifact []byte) error
}

const (
	maxAttempts  = 3
	retryBackoff = 2 * time.Second
)

// Dispatcher runs artifact generation and buyer notification after an
// order is committed. Failures here never undo the order: the purchase
// already happened, so every step degrades instead of aborting. A broken
// QR still yields a PDF, a broken PDF still yields an email, and only a
// notification that fails every retry is reported as an error.
type Dispatcher struct {
	QR       CodeGenerator
	Artifact ArtifactGenerator
	Notifier Notifier
	Logger   *logger.Logger

	backoff time.Duration
}

func NewDispatcher(qr CodeGenerator, artifact ArtifactGenerator, notifier Notifier, log *logger.Logger) *Dispatcher {
	return &Dispatcher{
		QR:       qr,
		Artifact: artifact,
		Notifier: notifier,
		Logger:   log,
		backoff:  retryBackoff,
	}
}

func (d *Dispatcher) Dispatch(order *models.Order) error {
	qrCode, err := d.QR.GenerateEncryptedQR(order)
	if err != nil {
		d.Logger.Warn("DISPATCH", fmt.Sprintf("QR generation failed for %s: %v", order.Reference, err))
		qrCode = nil
	}

	artifact, err := d.Artifact.Generate(order, qrCode)
	if err != nil {
		d.Logger.Warn("DISPATCH", fmt.Sprintf("Artifact generation failed for %s: %v", order.Reference, err))
		artifact = nil
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		lastErr = d.Notifier.Notify(order, artifact)
		if lastErr == nil {
			d.Logger.Info("DISPATCH", fmt.Sprintf("Ticket delivered for order %s (attempt %d)", order.Reference, attempt))
			return nil
		}
		d.Logger.Warn("DISPATCH", fmt.Sprintf("Delivery attempt %d/%d failed for %s: %v", attempt, maxAttempts, order.Reference, lastErr))
		if attempt < maxAttempts {
			time.Sleep(time.Duration(attempt) * d.backoff)
		}
	}

	d.Logger.Error("DISPATCH", fmt.Sprintf("Giving up on delivery for order %s: %v", order.Reference, lastErr))
	return fmt.Errorf("ticket delivery failed for %s after %d attempts: %w", order.Reference, maxAttempts, lastErr)
}
