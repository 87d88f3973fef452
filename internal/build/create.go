package build

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"git.home.luguber.info/inful/docpress/internal/model"
	"git.home.luguber.info/inful/docpress/internal/sequence"
	"git.home.luguber.info/inful/docpress/internal/store"
)

// CreateInstance mints the next sequence code for the content type and
// persists a new instance carrying it. The counter increment is serialized in
// the store, so concurrent creators never receive duplicate codes.
func CreateInstance(ctx context.Context, st store.Store, contentTypeID, creatorID uuid.UUID, serialized map[string]string, rawBody string) (*model.Instance, error) {
	ct, err := st.GetContentType(ctx, contentTypeID)
	if err != nil {
		return nil, fmt.Errorf("load content type %s: %w", contentTypeID, err)
	}
	n, err := st.NextSequence(ctx, ct.ID)
	if err != nil {
		return nil, fmt.Errorf("next sequence for %s: %w", ct.Prefix, err)
	}
	inst := &model.Instance{
		ID:            uuid.New(),
		InstanceCode:  sequence.Format(ct.Prefix, n),
		Serialized:    serialized,
		RawBody:       rawBody,
		ContentTypeID: ct.ID,
		CreatorID:     creatorID,
	}
	if err := st.CreateInstance(ctx, inst); err != nil {
		return nil, fmt.Errorf("create instance %s: %w", inst.InstanceCode, err)
	}
	return inst, nil
}
