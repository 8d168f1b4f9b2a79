package internal

// Mailer sends notification emails about newly available summaries
type Mailer interface {
	NotifyNewSummaries(email, channelTitle string, count int) error
}

// LogMailer logs notifications instead of sending them. It stands in until
// an SMTP backend is configured.
type LogMailer struct {
	logger *Logger
}

// NewLogMailer creates the logging mailer
func NewLogMailer(logger *Logger) *LogMailer {
	return &LogMailer{logger: logger}
}

// NotifyNewSummaries records the would-be notification in the log
func (m *LogMailer) NotifyNewSummaries(email, channelTitle string, count int) error {
	m.logger.Infof("notification for %s: %d new summaries from %s", email, count, channelTitle)
	return nil
}
