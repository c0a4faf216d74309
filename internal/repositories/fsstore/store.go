// Package fsstore implements repositories.Store on Cloud Firestore. Every
// check-and-increment runs inside RunTransaction.
package fsstore

import (
	"context"
	"fmt"
	"sort"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/google/uuid"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"settlementsam/internal/models"
	"settlementsam/internal/repositories"
)

const (
	leadsCollection      = "leads"
	clientsCollection    = "clients"
	codesCollection      = "verificationCodes"
	schedulesCollection  = "deliverySchedules"
	deliveriesCollection = "deliveries"
)

type ClientFun func(ctx context.Context) *firestore.Client

type Store struct {
	firestoreClientFun ClientFun
	closer             func() error
}

// New connects to projectID. credentialsFile may be empty to use ambient
// credentials or the emulator named by FIRESTORE_EMULATOR_HOST.
func New(ctx context.Context, projectID, credentialsFile string) (*Store, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	fs, err := firestore.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("firestore client: %w", err)
	}
	s := NewWithClient(func(context.Context) *firestore.Client { return fs })
	s.closer = fs.Close
	return s, nil
}

func NewWithClient(fun ClientFun) *Store {
	return &Store{firestoreClientFun: fun, closer: func() error { return nil }}
}

func (s *Store) Close() error { return s.closer() }

func (s *Store) col(ctx context.Context, name string) *firestore.CollectionRef {
	return s.firestoreClientFun(ctx).Collection(name)
}

func isNotFound(err error) bool {
	return status.Code(err) == codes.NotFound
}

func decodeLead(snap *firestore.DocumentSnapshot) (*models.Lead, error) {
	var l models.Lead
	if err := snap.DataTo(&l); err != nil {
		return nil, fmt.Errorf("decode lead %s: %w", snap.Ref.ID, err)
	}
	l.ID = snap.Ref.ID
	return &l, nil
}

func decodeClient(snap *firestore.DocumentSnapshot) (*models.Client, error) {
	var c models.Client
	if err := snap.DataTo(&c); err != nil {
		return nil, fmt.Errorf("decode client %s: %w", snap.Ref.ID, err)
	}
	c.ID = snap.Ref.ID
	return &c, nil
}

func decodeCode(snap *firestore.DocumentSnapshot) (*models.VerificationCode, error) {
	var vc models.VerificationCode
	if err := snap.DataTo(&vc); err != nil {
		return nil, fmt.Errorf("decode code %s: %w", snap.Ref.ID, err)
	}
	vc.ID = snap.Ref.ID
	return &vc, nil
}

func decodeSchedule(snap *firestore.DocumentSnapshot) (*models.DeliverySchedule, error) {
	var ds models.DeliverySchedule
	if err := snap.DataTo(&ds); err != nil {
		return nil, fmt.Errorf("decode schedule %s: %w", snap.Ref.ID, err)
	}
	ds.ID = snap.Ref.ID
	if ds.DeliveredByDate == nil {
		ds.DeliveredByDate = map[string]int{}
	}
	return &ds, nil
}

func decodeDelivery(snap *firestore.DocumentSnapshot) (*models.Delivery, error) {
	var d models.Delivery
	if err := snap.DataTo(&d); err != nil {
		return nil, fmt.Errorf("decode delivery %s: %w", snap.Ref.ID, err)
	}
	d.ID = snap.Ref.ID
	return &d, nil
}

// update applies field updates and maps a missing document to ErrNotFound.
func (s *Store) update(ctx context.Context, ref *firestore.DocumentRef, updates []firestore.Update) error {
	if _, err := ref.Update(ctx, updates); err != nil {
		if isNotFound(err) {
			return repositories.ErrNotFound
		}
		return err
	}
	return nil
}

func newID() string { return uuid.NewString() }

func now() time.Time { return time.Now().UTC() }

// latestSchedule picks the newest schedule among snaps. Sorting happens here
// so the query needs no composite index.
func latestSchedule(snaps []*firestore.DocumentSnapshot) (*models.DeliverySchedule, *firestore.DocumentRef, error) {
	var (
		best    *models.DeliverySchedule
		bestRef *firestore.DocumentRef
	)
	for _, snap := range snaps {
		ds, err := decodeSchedule(snap)
		if err != nil {
			return nil, nil, err
		}
		if best == nil || ds.CreatedAt.After(best.CreatedAt) {
			best, bestRef = ds, snap.Ref
		}
	}
	return best, bestRef, nil
}

func sortLeadsNewestFirst(leads []*models.Lead) {
	sort.SliceStable(leads, func(i, j int) bool { return leads[i].CreatedAt.After(leads[j].CreatedAt) })
}

var _ repositories.Store = (*Store)(nil)
