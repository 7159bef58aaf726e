package interactions

import "github.com/jinseisieko/se-toolkit-lab-4/models"

// FilterByItemID returns the logs whose ItemID equals *itemID, in input order.
// A nil itemID returns logs unchanged. The input is never modified.
func FilterByItemID(logs []models.InteractionLog, itemID *int64) []models.InteractionLog {
	if itemID == nil {
		return logs
	}

	filtered := make([]models.InteractionLog, 0, len(logs))
	for _, l := range logs {
		if l.ItemID == *itemID {
			filtered = append(filtered, l)
		}
	}

	return filtered
}
