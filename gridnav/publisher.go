package gridnav

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Publisher publishes robot state snapshots to MQTT
type Publisher struct {
	client        mqtt.Client
	publishPrefix string
	qos           byte

	mu        sync.Mutex
	lastStage LocalizationStage
	lastRun   bool
	published int
}

// NewPublisher creates a publisher; a nil client disables publishing
func NewPublisher(client mqtt.Client, prefix string) *Publisher {
	if prefix == "" {
		prefix = "gridbot"
	}
	return &Publisher{client: client, publishPrefix: prefix}
}

// PoseTopic is where pose snapshots are published
func (p *Publisher) PoseTopic() string { return p.publishPrefix + "/pose" }

// LocalizationTopic is where localizer status changes are published
func (p *Publisher) LocalizationTopic() string { return p.publishPrefix + "/localization" }

func (p *Publisher) publish(topic string, retain bool, v interface{}) error {
	if p.client == nil || !p.client.IsConnected() {
		return ErrNotConnected
	}
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshaling %s payload: %w", topic, err)
	}
	token := p.client.Publish(topic, p.qos, retain, payload)
	if token.WaitTimeout(2*time.Second) && token.Error() != nil {
		return fmt.Errorf("publishing to %s: %w", topic, token.Error())
	}
	p.mu.Lock()
	p.published++
	p.mu.Unlock()
	return nil
}

// PublishState publishes the pose snapshot, and the localization status
// whenever its stage or running flag changed since the last call
func (p *Publisher) PublishState(s RobotState) error {
	pose := struct {
		Pose      Pose         `json:"pose"`
		Grid      GridPosition `json:"grid"`
		Sweep     string       `json:"sweep"`
		Timestamp int64        `json:"timestamp"`
	}{s.Pose, s.Grid, s.Sweep, s.Updated.Unix()}
	if err := p.publish(p.PoseTopic(), false, pose); err != nil {
		return err
	}

	p.mu.Lock()
	changed := s.Localization.Stage != p.lastStage || s.Localization.Running != p.lastRun
	p.mu.Unlock()
	if !changed {
		return nil
	}
	if err := p.publish(p.LocalizationTopic(), true, s.Localization); err != nil {
		return err
	}
	p.mu.Lock()
	p.lastStage, p.lastRun = s.Localization.Stage, s.Localization.Running
	p.mu.Unlock()
	log.Printf("Published localization status: %s (running=%v)", s.Localization.Stage, s.Localization.Running)
	return nil
}

// Published returns how many messages were sent
func (p *Publisher) Published() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.published
}

// Run publishes the tracker snapshot every interval until ctx is cancelled
func (p *Publisher) Run(ctx context.Context, st *StateTracker, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !st.HasPose() {
				continue
			}
			if err := p.PublishState(st.Snapshot()); err != nil && err != ErrNotConnected {
				log.Printf("Error publishing state: %v", err)
			}
		}
	}
}
