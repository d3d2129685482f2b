package zabbix

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"
)

// Object status values shared by hosts and actions.
const (
	StatusEnabled  = 0
	StatusDisabled = 1
)

// backupName is the name an object is moved to before it is recreated.
func backupName(name string, at time.Time) string {
	return name + ".bkp-" + strconv.FormatInt(at.Unix(), 10)
}

// backup renames an existing object out of the way and disables it so a
// fresh one can take its name. names maps each name-like field to its
// current value (e.g. "host" and "name" for hosts).
func (c *Client) backup(ctx context.Context, object, idField, id string, names map[string]string) error {
	now := time.Now()
	params := Params{idField: id, "status": StatusDisabled}
	for field, name := range names {
		params[field] = backupName(name, now)
	}
	if err := c.Update(ctx, object, params); err != nil {
		return fmt.Errorf("failed to back up %s %s: %w", object, id, err)
	}
	c.log.Info("Existing object backed up and disabled",
		zap.String("object", object), zap.String("id", id))
	return nil
}
