package bus

import (
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"
)

const SubjectCriticalQueries = "trialqc.queries.critical"

// CriticalQueryEvent is published when a tool run produces critical
// findings that need site follow-up.
type CriticalQueryEvent struct {
	Tool          string    `json:"tool"`
	CriticalCount int       `json:"critical_count"`
	TotalQueries  int       `json:"total_queries"`
	GeneratedAt   time.Time `json:"generated_at"`
}

type Publisher struct {
	Conn *nats.Conn
}

func NewPublisher(url string) (*Publisher, error) {
	conn, err := nats.Connect(url)
	if err != nil {
		return nil, err
	}
	return &Publisher{Conn: conn}, nil
}

func (p *Publisher) Close() {
	if p.Conn != nil {
		p.Conn.Drain()
		p.Conn.Close()
	}
}

func (p *Publisher) Publish(subject string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return p.Conn.Publish(subject, data)
}
