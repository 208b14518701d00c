package store

import (
	"encoding/json"

	"github.com/arkantrust/payment-intents/models"
)

// AppendEvent adds ev to the end of its intent's timeline and sets
// ev.Sequence.
func (t *Tx) AppendEvent(ev *models.PaymentEvent) error {
	b, err := t.tx.Bucket(bucketEvents).CreateBucketIfNotExists([]byte(ev.IntentID))
	if err != nil {
		return err
	}
	_, err = appendJSON(b, func(seq uint64) { ev.Sequence = seq }, ev)
	return err
}

// Events returns the intent's timeline in append order. An intent with no
// events yields an empty slice.
func (t *Tx) Events(intentID string) ([]models.PaymentEvent, error) {
	events := []models.PaymentEvent{}

	b := t.tx.Bucket(bucketEvents).Bucket([]byte(intentID))
	if b == nil {
		return events, nil
	}
	err := b.ForEach(func(_, v []byte) error {
		var ev models.PaymentEvent
		if err := json.Unmarshal(v, &ev); err != nil {
			return err
		}
		events = append(events, ev)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return events, nil
}

// InsertWebhookDelivery records a processed provider callback.
func (t *Tx) InsertWebhookDelivery(d *models.WebhookDelivery) error {
	_, err := appendJSON(t.tx.Bucket(bucketWebhookDeliveries), func(seq uint64) { d.Sequence = seq }, d)
	return err
}

// WebhookDeliveries returns the deliveries recorded for one intent, oldest
// first.
func (t *Tx) WebhookDeliveries(intentID string) ([]models.WebhookDelivery, error) {
	out := []models.WebhookDelivery{}
	err := t.tx.Bucket(bucketWebhookDeliveries).ForEach(func(_, v []byte) error {
		var d models.WebhookDelivery
		if err := json.Unmarshal(v, &d); err != nil {
			return err
		}
		if d.IntentID == intentID {
			out = append(out, d)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
