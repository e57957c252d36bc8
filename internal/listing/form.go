package listing

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/rotisserie/eris"
	"golang.org/x/sync/singleflight"

	"github.com/sells-group/listings/internal/auth"
)

// ErrFormClosed is returned by a form after Close.
var ErrFormClosed = eris.New("listing: form closed")

// Workflow submits a draft snapshot. *Submitter implements it.
type Workflow interface {
	Submit(ctx context.Context, d Draft) (*Result, error)
}

// Form owns one draft for as long as it is mounted: it applies edits, binds
// the owner from an auth source, and runs at most one submit at a time.
type Form struct {
	workflow Workflow
	geoDflt  bool

	mu          sync.Mutex
	draft       Draft
	rev         uint64
	closed      bool
	unsubscribe func()

	group    singleflight.Group
	inFlight atomic.Bool
}

// NewForm returns a form holding a fresh draft. geolocation is the initial
// address-resolution setting.
func NewForm(w Workflow, geolocation bool) *Form {
	return &Form{
		workflow: w,
		geoDflt:  geolocation,
		draft:    NewDraft(geolocation),
	}
}

// Mount subscribes to identity changes from src. Sign-in binds the owner,
// sign-out clears it. Mounting again replaces the previous subscription.
func (f *Form) Mount(src auth.Source) {
	f.mu.Lock()
	prev := f.unsubscribe
	f.unsubscribe = nil
	f.mu.Unlock()
	if prev != nil {
		prev()
	}

	unsub := src.Subscribe(func(id *auth.Identity) {
		f.mu.Lock()
		defer f.mu.Unlock()
		if id == nil {
			f.draft.OwnerID = ""
		} else {
			f.draft.OwnerID = id.UID
		}
	})

	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		unsub()
		return
	}
	f.unsubscribe = unsub
	f.mu.Unlock()
}

// Owner is the bound owner id, or "" when signed out.
func (f *Form) Owner() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.draft.OwnerID
}

// Apply replaces one field of the draft.
func (f *Form) Apply(e Edit) error {
	if e == nil {
		return eris.New("listing: nil edit")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrFormClosed
	}
	e.apply(&f.draft)
	f.rev++
	return nil
}

// Snapshot returns a copy of the current draft.
func (f *Form) Snapshot() Draft {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.draft.Clone()
}

// Submitting reports whether a submit is in flight.
func (f *Form) Submitting() bool {
	return f.inFlight.Load()
}

// Submit runs the workflow on a snapshot of the draft. Calls made while a
// submit is in flight wait for it and receive its result instead of
// starting another one, so a double submit writes a single record. The
// in-flight call runs with the context of the caller that started it.
//
// After a successful submit the draft is reset, unless it was edited while
// the submit ran.
func (f *Form) Submit(ctx context.Context) (*Result, error) {
	v, err, _ := f.group.Do("submit", func() (any, error) {
		f.inFlight.Store(true)
		defer f.inFlight.Store(false)

		f.mu.Lock()
		if f.closed {
			f.mu.Unlock()
			return nil, ErrFormClosed
		}
		d := f.draft.Clone()
		rev := f.rev
		f.mu.Unlock()

		if d.OwnerID == "" {
			return nil, newSubmitError(Unauthenticated, nil)
		}

		res, err := f.workflow.Submit(ctx, d)
		if err != nil {
			return nil, err
		}

		f.mu.Lock()
		if f.rev == rev {
			owner := f.draft.OwnerID
			f.draft = NewDraft(f.geoDflt)
			f.draft.OwnerID = owner
			f.rev++
		}
		f.mu.Unlock()
		return res, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Result), nil
}

// Close drops the auth subscription. Later edits and submits fail with
// ErrFormClosed.
func (f *Form) Close() {
	f.mu.Lock()
	unsub := f.unsubscribe
	f.unsubscribe = nil
	f.closed = true
	f.mu.Unlock()
	if unsub != nil {
		unsub()
	}
}
