package store

import (
	"encoding/json"

	"github.com/arkantrust/payment-intents/models"
)

// AppendAudit stores e and sets e.Sequence.
func (t *Tx) AppendAudit(e *models.AuditEntry) error {
	_, err := appendJSON(t.tx.Bucket(bucketAudit), func(seq uint64) { e.Sequence = seq }, e)
	return err
}

// Audit returns one page of audit entries, newest first, and the total
// number of entries.
func (t *Tx) Audit(pageNum, size int) ([]models.AuditEntry, int, error) {
	b := t.tx.Bucket(bucketAudit)
	total := b.Stats().KeyN
	start, end := page(total, pageNum, size)

	entries := []models.AuditEntry{}
	c := b.Cursor()
	i := 0
	for k, v := c.Last(); k != nil && i < end; k, v = c.Prev() {
		if i >= start {
			var e models.AuditEntry
			if err := json.Unmarshal(v, &e); err != nil {
				return nil, 0, err
			}
			entries = append(entries, e)
		}
		i++
	}
	return entries, total, nil
}
