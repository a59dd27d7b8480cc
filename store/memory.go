package store

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-process Store used by the test suite and for local
// runs without a database. It mirrors the MongoDB implementation's filter and
// batch semantics, including array-contains matching and all-or-nothing
// commits, and supports injecting a commit failure to exercise cascade
// atomicity.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string]map[string]reflect.Value
	subscribers map[int]*memorySubscriber
	nextSubID   int
	commitErr   error
}

type memorySubscriber struct {
	collection string
	onChange   func(Change)
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		collections: make(map[string]map[string]reflect.Value),
		subscribers: make(map[int]*memorySubscriber),
	}
}

// FailNextCommit makes the next batch Commit return err without applying any
// of its staged operations.
func (m *MemoryStore) FailNextCommit(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.commitErr = err
}

// structValue unwraps pointers and returns the underlying struct value.
func structValue(doc any) (reflect.Value, error) {
	v := reflect.ValueOf(doc)
	for v.Kind() == reflect.Ptr {
		if v.IsNil() {
			return reflect.Value{}, fmt.Errorf("nil document")
		}
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return reflect.Value{}, fmt.Errorf("document must be a struct, got %s", v.Kind())
	}
	return v, nil
}

// fieldByKey resolves a document field name (the bson tag name, with "_id"
// for the id) to the matching struct field.
func fieldByKey(v reflect.Value, key string) (reflect.Value, bool) {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		tag := t.Field(i).Tag.Get("bson")
		name := strings.Split(tag, ",")[0]
		if name == "" {
			name = t.Field(i).Name
		}
		if name == key {
			return v.Field(i), true
		}
	}
	return reflect.Value{}, false
}

func copyStruct(v reflect.Value) reflect.Value {
	cp := reflect.New(v.Type())
	cp.Elem().Set(v)
	return cp.Elem()
}

// scalarEqual compares a struct field against a filter value, dereferencing
// pointers and comparing string kinds by their string value so typed string
// enums match plain strings.
func scalarEqual(field reflect.Value, want any) bool {
	if want == nil {
		return field.Kind() == reflect.Ptr && field.IsNil()
	}
	w := reflect.ValueOf(want)
	for field.Kind() == reflect.Ptr {
		if field.IsNil() {
			return false
		}
		field = field.Elem()
	}
	for w.Kind() == reflect.Ptr {
		if w.IsNil() {
			return false
		}
		w = w.Elem()
	}
	if field.Kind() == reflect.String && w.Kind() == reflect.String {
		return field.String() == w.String()
	}
	return reflect.DeepEqual(field.Interface(), w.Interface())
}

func matchesFilter(v reflect.Value, filter Filter) bool {
	for key, want := range filter {
		field, ok := fieldByKey(v, key)
		if !ok {
			return false
		}
		// Scalar against array field means array-contains, as in MongoDB.
		if field.Kind() == reflect.Slice && (want == nil || reflect.ValueOf(want).Kind() != reflect.Slice) {
			found := false
			for i := 0; i < field.Len(); i++ {
				if scalarEqual(field.Index(i), want) {
					found = true
					break
				}
			}
			if !found {
				return false
			}
			continue
		}
		if !scalarEqual(field, want) {
			return false
		}
	}
	return true
}

func setField(field reflect.Value, val any) error {
	if val == nil {
		field.Set(reflect.Zero(field.Type()))
		return nil
	}
	v := reflect.ValueOf(val)
	switch {
	case v.Type().AssignableTo(field.Type()):
		field.Set(v)
	case v.Type().ConvertibleTo(field.Type()) && field.Kind() != reflect.Ptr:
		field.Set(v.Convert(field.Type()))
	case field.Kind() == reflect.Ptr && v.Type().AssignableTo(field.Type().Elem()):
		p := reflect.New(field.Type().Elem())
		p.Elem().Set(v)
		field.Set(p)
	default:
		return fmt.Errorf("cannot assign %s to field of type %s", v.Type(), field.Type())
	}
	return nil
}

func (m *MemoryStore) notify(changes []Change) {
	m.mu.RLock()
	var targets []func(Change)
	var pending []Change
	for _, change := range changes {
		for _, sub := range m.subscribers {
			if sub.collection == change.Collection {
				targets = append(targets, sub.onChange)
				pending = append(pending, change)
			}
		}
	}
	m.mu.RUnlock()
	for i, fn := range targets {
		fn(pending[i])
	}
}

func (m *MemoryStore) Create(ctx context.Context, collection string, doc any) (string, error) {
	v, err := structValue(doc)
	if err != nil {
		return "", err
	}
	cp := copyStruct(v)
	idField, ok := fieldByKey(cp, "_id")
	if !ok {
		return "", fmt.Errorf("document has no id field")
	}
	id := idField.String()
	if id == "" {
		id = uuid.New().String()
		idField.SetString(id)
	}

	m.mu.Lock()
	if m.collections[collection] == nil {
		m.collections[collection] = make(map[string]reflect.Value)
	}
	m.collections[collection][id] = cp
	m.mu.Unlock()

	m.notify([]Change{{Type: ChangeCreated, Collection: collection, ID: id}})
	return id, nil
}

func (m *MemoryStore) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	m.mu.Lock()
	stored, ok := m.collections[collection][id]
	if !ok {
		m.mu.Unlock()
		return ErrNotFound
	}
	cp := copyStruct(stored)
	for key, val := range fields {
		field, ok := fieldByKey(cp, key)
		if !ok {
			m.mu.Unlock()
			return fmt.Errorf("unknown field %q in %s", key, collection)
		}
		if err := setField(field, val); err != nil {
			m.mu.Unlock()
			return err
		}
	}
	m.collections[collection][id] = cp
	m.mu.Unlock()

	m.notify([]Change{{Type: ChangeUpdated, Collection: collection, ID: id}})
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, collection, id string) error {
	m.mu.Lock()
	if _, ok := m.collections[collection][id]; !ok {
		m.mu.Unlock()
		return ErrNotFound
	}
	delete(m.collections[collection], id)
	m.mu.Unlock()

	m.notify([]Change{{Type: ChangeDeleted, Collection: collection, ID: id}})
	return nil
}

func (m *MemoryStore) GetOne(ctx context.Context, collection, id string, out any) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	stored, ok := m.collections[collection][id]
	if !ok {
		return ErrNotFound
	}
	outVal := reflect.ValueOf(out)
	if outVal.Kind() != reflect.Ptr || outVal.IsNil() {
		return fmt.Errorf("out must be a non-nil pointer")
	}
	if !stored.Type().AssignableTo(outVal.Elem().Type()) {
		return fmt.Errorf("cannot decode %s into %s", stored.Type(), outVal.Elem().Type())
	}
	outVal.Elem().Set(copyStruct(stored))
	return nil
}

func (m *MemoryStore) Query(ctx context.Context, collection string, filter Filter, order *Order, out any) error {
	outVal := reflect.ValueOf(out)
	if outVal.Kind() != reflect.Ptr || outVal.Elem().Kind() != reflect.Slice {
		return fmt.Errorf("out must be a pointer to a slice")
	}
	elemType := outVal.Elem().Type().Elem()
	isPtr := elemType.Kind() == reflect.Ptr
	if isPtr {
		elemType = elemType.Elem()
	}

	m.mu.RLock()
	var matched []reflect.Value
	for _, stored := range m.collections[collection] {
		if stored.Type() != elemType {
			m.mu.RUnlock()
			return fmt.Errorf("cannot decode %s into %s", stored.Type(), elemType)
		}
		if matchesFilter(stored, filter) {
			matched = append(matched, copyStruct(stored))
		}
	}
	m.mu.RUnlock()

	if order != nil {
		sort.SliceStable(matched, func(i, j int) bool {
			less := fieldLess(matched[i], matched[j], order.Field)
			if order.Desc {
				return !less
			}
			return less
		})
	} else {
		// Deterministic order for callers and tests.
		sort.SliceStable(matched, func(i, j int) bool {
			return fieldLess(matched[i], matched[j], "_id")
		})
	}

	result := reflect.MakeSlice(outVal.Elem().Type(), 0, len(matched))
	for _, v := range matched {
		if isPtr {
			p := reflect.New(elemType)
			p.Elem().Set(v)
			result = reflect.Append(result, p)
		} else {
			result = reflect.Append(result, v)
		}
	}
	outVal.Elem().Set(result)
	return nil
}

func fieldLess(a, b reflect.Value, key string) bool {
	fa, ok := fieldByKey(a, key)
	if !ok {
		return false
	}
	fb, _ := fieldByKey(b, key)
	for fa.Kind() == reflect.Ptr {
		if fa.IsNil() {
			return true
		}
		fa = fa.Elem()
	}
	for fb.Kind() == reflect.Ptr {
		if fb.IsNil() {
			return false
		}
		fb = fb.Elem()
	}
	switch fa.Kind() {
	case reflect.String:
		return fa.String() < fb.String()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return fa.Int() < fb.Int()
	case reflect.Float32, reflect.Float64:
		return fa.Float() < fb.Float()
	}
	if ta, ok := fa.Interface().(time.Time); ok {
		tb, _ := fb.Interface().(time.Time)
		return ta.Before(tb)
	}
	return false
}

func (m *MemoryStore) Subscribe(ctx context.Context, collection string, filter Filter, onChange func(Change)) (func(), error) {
	m.mu.Lock()
	id := m.nextSubID
	m.nextSubID++
	m.subscribers[id] = &memorySubscriber{collection: collection, onChange: onChange}
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.subscribers, id)
		m.mu.Unlock()
	}, nil
}

func (m *MemoryStore) Batch() Batch {
	return &memoryBatch{store: m}
}

type memoryBatch struct {
	store *MemoryStore
	ops   []mongoOp
}

func (b *memoryBatch) Set(collection, id string, doc any) {
	b.ops = append(b.ops, mongoOp{kind: opSet, collection: collection, id: id, doc: doc})
}

func (b *memoryBatch) Update(collection, id string, fields map[string]any) {
	b.ops = append(b.ops, mongoOp{kind: opUpdate, collection: collection, id: id, fields: fields})
}

func (b *memoryBatch) Delete(collection, id string) {
	b.ops = append(b.ops, mongoOp{kind: opDelete, collection: collection, id: id})
}

// Commit validates every staged operation before applying any of them, so a
// failing batch leaves the store untouched.
func (b *memoryBatch) Commit(ctx context.Context) error {
	m := b.store
	m.mu.Lock()

	if m.commitErr != nil {
		err := m.commitErr
		m.commitErr = nil
		m.mu.Unlock()
		return err
	}

	// Validation pass: updates must target existing documents, set documents
	// must be decodable.
	staged := make([]reflect.Value, len(b.ops))
	for i, op := range b.ops {
		switch op.kind {
		case opSet:
			v, err := structValue(op.doc)
			if err != nil {
				m.mu.Unlock()
				return err
			}
			cp := copyStruct(v)
			idField, ok := fieldByKey(cp, "_id")
			if !ok {
				m.mu.Unlock()
				return fmt.Errorf("document has no id field")
			}
			idField.SetString(op.id)
			staged[i] = cp
		case opUpdate:
			stored, ok := m.collections[op.collection][op.id]
			if !ok {
				m.mu.Unlock()
				return ErrNotFound
			}
			cp := copyStruct(stored)
			for key, val := range op.fields {
				field, ok := fieldByKey(cp, key)
				if !ok {
					m.mu.Unlock()
					return fmt.Errorf("unknown field %q in %s", key, op.collection)
				}
				if err := setField(field, val); err != nil {
					m.mu.Unlock()
					return err
				}
			}
			staged[i] = cp
		}
	}

	// Apply pass.
	var changes []Change
	for i, op := range b.ops {
		switch op.kind {
		case opSet:
			if m.collections[op.collection] == nil {
				m.collections[op.collection] = make(map[string]reflect.Value)
			}
			m.collections[op.collection][op.id] = staged[i]
			changes = append(changes, Change{Type: ChangeCreated, Collection: op.collection, ID: op.id})
		case opUpdate:
			m.collections[op.collection][op.id] = staged[i]
			changes = append(changes, Change{Type: ChangeUpdated, Collection: op.collection, ID: op.id})
		case opDelete:
			if _, ok := m.collections[op.collection][op.id]; ok {
				delete(m.collections[op.collection], op.id)
				changes = append(changes, Change{Type: ChangeDeleted, Collection: op.collection, ID: op.id})
			}
		}
	}
	m.mu.Unlock()

	m.notify(changes)
	return nil
}
