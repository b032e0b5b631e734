package mock

import "sync"

// Resource is a poolable double that counts how many times each Config
// hook fired against it, for assertions in the core package's tests and
// in callers exercising their own Config without a real backend.
type Resource struct {
	ID int64

	mu      sync.Mutex
	opens   int
	gets    int
	rets    int
	closes  int
	healthy bool
}

// NewFactory returns a Config.Fun that builds Resources and a slice where
// every constructed Resource is recorded, in construction order.
func NewFactory() (fun func(id int64) (any, error), built *[]*Resource) {
	var mu sync.Mutex
	var all []*Resource

	fun = func(id int64) (any, error) {
		r := &Resource{ID: id, healthy: true}
		mu.Lock()
		all = append(all, r)
		mu.Unlock()
		return r, nil
	}

	return fun, &all
}

func (r *Resource) Open() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.opens++
}

func (r *Resource) Get() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gets++
	return nil
}

func (r *Resource) Ret() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rets++
	return nil
}

func (r *Resource) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closes++
}

// SetHealthy controls what Healthy reports; Resources start out healthy.
func (r *Resource) SetHealthy(ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.healthy = ok
}

func (r *Resource) Healthy() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.healthy
}

func (r *Resource) Opens() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.opens
}

func (r *Resource) Gets() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.gets
}

func (r *Resource) Rets() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rets
}

func (r *Resource) Closes() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closes
}

// Opener adapts Resource.Open to Config.Opener.
func Opener(obj any) {
	obj.(*Resource).Open()
}

// Getter adapts Resource.Get to Config.Getter.
func Getter(obj any) error {
	return obj.(*Resource).Get()
}

// Retter adapts Resource.Ret to Config.Retter.
func Retter(obj any) error {
	return obj.(*Resource).Ret()
}

// Closer adapts Resource.Close to Config.Closer.
func Closer(obj any) {
	obj.(*Resource).Close()
}

// Health adapts Resource.Healthy to Config.Health.
func Health(obj any) bool {
	return obj.(*Resource).Healthy()
}
