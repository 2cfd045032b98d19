package stream

import (
	"encoding/json"
	"fmt"

	"github.com/opsdeck/order-console/pkg/models"
)

func decodeEvent(data []byte, event *models.OrderEvent) error {
	if err := json.Unmarshal(data, event); err != nil {
		return fmt.Errorf("failed to unmarshal order event: %w", err)
	}
	return nil
}
