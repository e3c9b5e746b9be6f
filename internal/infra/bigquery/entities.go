package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"

	"github.com/calycompta/compta-core/internal/domain"
)

// entityTables maps each entity type to its collection table in the
// calycompta dataset.
var entityTables = map[domain.EntityType]string{
	domain.EntityParticipant: "participants",
	domain.EntityExpense:     "expenses",
	domain.EntityEvent:       "events",
	domain.EntityMember:      "members",
	domain.EntityDemand:      "demands",
	domain.EntityInscription: "inscriptions",
}

// EntityRef is a minimal view of an entity-collection row, enough for
// name resolution and matching.
type EntityRef struct {
	ID   string `bigquery:"id"`
	Name string `bigquery:"display_name"`
}

// LookupEntityNameWithClient resolves the display label of an entity for
// denormalization onto matched links. Returns empty string when the
// entity does not exist (a dangling link is not an error here).
func LookupEntityNameWithClient(ctx context.Context, client *bigquery.Client, tenantID string, entityType domain.EntityType, entityID string) (string, error) {
	if tenantID == "" {
		return "", domain.ErrTenantRequired
	}
	table, ok := entityTables[entityType]
	if !ok {
		return "", fmt.Errorf("LookupEntityName: unknown entity type %q", entityType)
	}

	q := client.Query(fmt.Sprintf(`
		SELECT id, display_name
		FROM %s.%s
		WHERE tenant_id = @tenant_id
		  AND id = @id
		LIMIT 1
	`, datasetID, table))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "tenant_id", Value: tenantID},
		{Name: "id", Value: entityID},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return "", fmt.Errorf("LookupEntityName: query read: %w", err)
	}

	var ref EntityRef
	err = it.Next(&ref)
	if err == iterator.Done {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("LookupEntityName: iter next: %w", err)
	}

	return ref.Name, nil
}

// ListEntitiesWithClient lists a tenant's entities of one type. The
// matcher uses this to build its candidate sets.
func ListEntitiesWithClient(ctx context.Context, client *bigquery.Client, tenantID string, entityType domain.EntityType) ([]EntityRef, error) {
	if tenantID == "" {
		return nil, domain.ErrTenantRequired
	}
	table, ok := entityTables[entityType]
	if !ok {
		return nil, fmt.Errorf("ListEntities: unknown entity type %q", entityType)
	}

	q := client.Query(fmt.Sprintf(`
		SELECT id, display_name
		FROM %s.%s
		WHERE tenant_id = @tenant_id
		ORDER BY display_name
	`, datasetID, table))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "tenant_id", Value: tenantID},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("ListEntities: query read: %w", err)
	}

	var refs []EntityRef
	for {
		var ref EntityRef
		err := it.Next(&ref)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ListEntities: iter next: %w", err)
		}
		refs = append(refs, ref)
	}

	return refs, nil
}
