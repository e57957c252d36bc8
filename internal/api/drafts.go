package api

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sells-group/listings/internal/auth"
	"github.com/sells-group/listings/internal/listing"
)

var (
	errDraftNotFound  = eris.New("api: draft not found")
	errDraftForbidden = eris.New("api: draft belongs to another user")
)

// draft is a form mounted for one signed-in user. The session stays signed
// in as that user for the life of the draft.
type draft struct {
	id      string
	owner   string
	form    *listing.Form
	session *auth.Session
	touched time.Time
}

func (d *draft) close() {
	d.form.Close()
	d.session.SignOut()
}

type registry struct {
	mu     sync.Mutex
	drafts map[string]*draft
	now    func() time.Time
}

func newRegistry() *registry {
	return &registry{drafts: make(map[string]*draft), now: time.Now}
}

// open mounts a new form for id.
func (r *registry) open(id auth.Identity, w listing.Workflow, geolocation bool) *draft {
	d := &draft{
		id:      uuid.NewString(),
		owner:   id.UID,
		form:    listing.NewForm(w, geolocation),
		session: auth.NewSignedInSession(id),
	}
	d.form.Mount(d.session)

	r.mu.Lock()
	d.touched = r.now()
	r.drafts[d.id] = d
	r.mu.Unlock()
	return d
}

// get returns the draft if uid owns it and marks it as used.
func (r *registry) get(id, uid string) (*draft, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.drafts[id]
	if !ok {
		return nil, errDraftNotFound
	}
	if d.owner != uid {
		return nil, errDraftForbidden
	}
	d.touched = r.now()
	return d, nil
}

func (r *registry) remove(id, uid string) error {
	r.mu.Lock()
	d, ok := r.drafts[id]
	switch {
	case !ok:
		r.mu.Unlock()
		return errDraftNotFound
	case d.owner != uid:
		r.mu.Unlock()
		return errDraftForbidden
	}
	delete(r.drafts, id)
	r.mu.Unlock()

	d.close()
	return nil
}

// sweep closes drafts idle for longer than ttl. Drafts with a submit in
// flight are kept.
func (r *registry) sweep(ttl time.Duration) int {
	cutoff := r.now().Add(-ttl)

	r.mu.Lock()
	var expired []*draft
	for id, d := range r.drafts {
		if d.touched.Before(cutoff) && !d.form.Submitting() {
			expired = append(expired, d)
			delete(r.drafts, id)
		}
	}
	r.mu.Unlock()

	for _, d := range expired {
		d.close()
	}
	return len(expired)
}

func (r *registry) closeAll() {
	r.mu.Lock()
	all := r.drafts
	r.drafts = make(map[string]*draft)
	r.mu.Unlock()

	for _, d := range all {
		d.close()
	}
}

func (r *registry) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.drafts)
}
