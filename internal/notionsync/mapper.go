package notionsync

import (
	"fmt"
	"strings"

	"github.com/jomei/notionapi"

	"github.com/calycompta/compta-core/internal/audit"
)

// AuditEntryToNotionProperties converts one duplicate-bearing
// transaction into Notion properties for the review database. The
// Transaction ID property is the sync key.
func AuditEntryToNotionProperties(tenantID string, entry *audit.TransactionAudit) notionapi.Properties {
	tx := entry.Transaction

	title := tx.SequenceNumber
	if title == "" {
		title = tx.ID
	}

	props := notionapi.Properties{
		"Sequence": notionapi.TitleProperty{
			Title: []notionapi.RichText{
				{
					Type: notionapi.ObjectTypeText,
					Text: &notionapi.Text{
						Content: title,
					},
				},
			},
		},
		"Transaction ID": notionapi.RichTextProperty{
			RichText: []notionapi.RichText{
				{
					Type: notionapi.ObjectTypeText,
					Text: &notionapi.Text{
						Content: tx.ID,
					},
				},
			},
		},
		"Links": notionapi.NumberProperty{
			Number: float64(entry.LinkCount),
		},
	}

	if tenantID != "" {
		props["Tenant"] = notionapi.SelectProperty{
			Select: notionapi.Option{
				Name: tenantID,
			},
		}
	}

	if tx.Amount != nil {
		amount, _ := tx.Amount.Float64()
		props["Amount"] = notionapi.NumberProperty{
			Number: amount,
		}
	}

	if !tx.ExecutionDate.IsZero() {
		date := notionapi.Date(tx.ExecutionDate)
		props["Execution Date"] = notionapi.DateProperty{
			Date: &notionapi.DateObject{
				Start: &date,
			},
		}
	}

	if tx.CounterpartyName != "" {
		props["Counterparty"] = notionapi.RichTextProperty{
			RichText: []notionapi.RichText{
				{
					Type: notionapi.ObjectTypeText,
					Text: &notionapi.Text{
						Content: tx.CounterpartyName,
					},
				},
			},
		}
	}

	if len(entry.Duplicates) > 0 {
		var keys []string
		for _, dup := range entry.Duplicates {
			keys = append(keys, fmt.Sprintf("%s x%d", dup.Key, dup.Count))
		}
		props["Duplicate Keys"] = notionapi.RichTextProperty{
			RichText: []notionapi.RichText{
				{
					Type: notionapi.ObjectTypeText,
					Text: &notionapi.Text{
						Content: strings.Join(keys, ", "),
					},
				},
			},
		}
	}

	return props
}
