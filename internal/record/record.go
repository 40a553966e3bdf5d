package record

import (
	"errors"
	"fmt"
	"time"
)

// Record is implemented by Moment, Entity and Secret.
type Record interface {
	Kind() Kind
	// Identity holds the hashed fields.
	Identity() Object
	// State holds persisted but unhashed fields; nil when the kind has none.
	State() Object
}

// selfField is stored redundantly in every persisted record for self-verification.
const selfField = "self"

// AddressOf computes the content address of r.
func AddressOf(r Record) (Address, error) {
	digest, err := Digest(r.Kind(), r.Identity())
	if err != nil {
		return "", err
	}
	return NewAddress(r.Kind(), digest), nil
}

// Encode produces the persisted form of r: identity, state and self address.
func Encode(r Record, self Address) ([]byte, error) {
	doc := r.Identity()
	if st := r.State(); st != nil {
		doc = doc.Merge(st)
	}
	doc = doc.Merge(Object{selfField: String(self)})
	return MarshalCanonical(doc)
}

// Decode parses a persisted record of the given kind. It does not verify the
// digest; the object store does that against the key it read from.
func Decode(kind Kind, data []byte) (Record, error) {
	doc, err := ParseObject(data)
	if err != nil {
		return nil, err
	}
	self, err := doc.str(selfField)
	if err != nil {
		return nil, err
	}
	fields := doc.Without(selfField)

	switch kind {
	case KindMoment:
		return decodeMoment(fields, Address(self))
	case KindEntity:
		return decodeEntity(fields, Address(self))
	case KindSecret:
		return decodeSecret(fields, Address(self))
	default:
		return nil, fmt.Errorf("unknown record kind %q", kind)
	}
}

// Coordinate is an optional spatial position. Degrees are kept as decimal
// strings because floats are not allowed in canonical JSON.
type Coordinate struct {
	Lat string
	Lon string
}

// Moment is an immutable point in time with an optional coordinate.
type Moment struct {
	At    time.Time
	Place *Coordinate
	Self  Address
}

func (Moment) Kind() Kind { return KindMoment }

func (m Moment) Identity() Object {
	obj := Object{"at": Int(m.At.UnixNano())}
	if m.Place != nil {
		obj["lat"] = String(m.Place.Lat)
		obj["lon"] = String(m.Place.Lon)
	}
	return obj
}

func (Moment) State() Object { return nil }

func decodeMoment(fields Object, self Address) (Moment, error) {
	at, err := fields.integer("at")
	if err != nil {
		return Moment{}, err
	}
	m := Moment{At: time.Unix(0, at).UTC(), Self: self}
	lat, err := fields.optStr("lat")
	if err != nil {
		return Moment{}, err
	}
	lon, err := fields.optStr("lon")
	if err != nil {
		return Moment{}, err
	}
	if lat != "" || lon != "" {
		m.Place = &Coordinate{Lat: lat, Lon: lon}
	}
	return m, nil
}

// Ancestor is either Root (the pioneer, its own ancestor) or a reference
// to the entity that sponsored this one. The zero value is Root.
type Ancestor struct {
	ref Address
}

// Root is the pioneer's ancestor.
func Root() Ancestor { return Ancestor{} }

// RefersTo names a sponsoring entity.
func RefersTo(entity Address) Ancestor { return Ancestor{ref: entity} }

// IsRoot reports whether this is the pioneer's ancestor.
func (a Ancestor) IsRoot() bool { return a.ref == "" }

// Ref returns the sponsoring entity address, empty for Root.
func (a Ancestor) Ref() Address { return a.ref }

// Entity is an identity node in the ledger.
type Entity struct {
	Moment   Address
	Ancestor Ancestor
	// Secret is the secret consumed to mint this entity; empty for the pioneer.
	Secret Address
	Self   Address
}

func (Entity) Kind() Kind { return KindEntity }

func (e Entity) Identity() Object {
	return Object{
		"moment":   String(e.Moment),
		"ancestor": String(e.Ancestor.Ref()),
		"pioneer":  Bool(e.Ancestor.IsRoot()),
		"secret":   String(e.Secret),
	}
}

func (Entity) State() Object { return nil }

// IsPioneer reports whether e is the root entity.
func (e Entity) IsPioneer() bool { return e.Ancestor.IsRoot() }

// AncestorRef returns the ancestor address, which is the entity itself for the pioneer.
func (e Entity) AncestorRef() Address {
	if e.Ancestor.IsRoot() {
		return e.Self
	}
	return e.Ancestor.Ref()
}

func decodeEntity(fields Object, self Address) (Entity, error) {
	moment, err := fields.str("moment")
	if err != nil {
		return Entity{}, err
	}
	ancestor, err := fields.str("ancestor")
	if err != nil {
		return Entity{}, err
	}
	pioneer, err := fields.boolean("pioneer")
	if err != nil {
		return Entity{}, err
	}
	secret, err := fields.str("secret")
	if err != nil {
		return Entity{}, err
	}

	e := Entity{Moment: Address(moment), Secret: Address(secret), Self: self}
	switch {
	case pioneer && ancestor != "":
		return Entity{}, errors.New("pioneer entity must not name an ancestor")
	case pioneer:
		e.Ancestor = Root()
	case !Address(ancestor).Valid() || Address(ancestor).Kind() != KindEntity:
		return Entity{}, fmt.Errorf("invalid ancestor %q", ancestor)
	default:
		e.Ancestor = RefersTo(Address(ancestor))
	}
	return e, nil
}

// Secret is a single-use capability token authored by an entity.
type Secret struct {
	Moment Address
	Author Address
	// Nonce makes secrets authored in the same instant distinct and unguessable.
	Nonce    string
	Consumed bool
	Consumer Address
	Self     Address
}

func (Secret) Kind() Kind { return KindSecret }

func (s Secret) Identity() Object {
	return Object{
		"moment": String(s.Moment),
		"author": String(s.Author),
		"nonce":  String(s.Nonce),
	}
}

func (s Secret) State() Object {
	return Object{
		"consumed": Bool(s.Consumed),
		"consumer": String(s.Consumer),
	}
}

// ErrAlreadyConsumed is returned when consuming a secret twice.
var ErrAlreadyConsumed = errors.New("record: secret already consumed")

// Consume returns a copy of s flipped to consumed by consumer.
// The transition is one-way.
func (s Secret) Consume(consumer Address) (Secret, error) {
	if s.Consumed {
		return s, ErrAlreadyConsumed
	}
	if !consumer.Valid() || consumer.Kind() != KindEntity {
		return s, fmt.Errorf("%w: consumer %q", ErrInvalidAddress, consumer)
	}
	s.Consumed = true
	s.Consumer = consumer
	return s, nil
}

func decodeSecret(fields Object, self Address) (Secret, error) {
	moment, err := fields.str("moment")
	if err != nil {
		return Secret{}, err
	}
	author, err := fields.str("author")
	if err != nil {
		return Secret{}, err
	}
	nonce, err := fields.str("nonce")
	if err != nil {
		return Secret{}, err
	}
	consumed, err := fields.boolean("consumed")
	if err != nil {
		return Secret{}, err
	}
	consumer, err := fields.str("consumer")
	if err != nil {
		return Secret{}, err
	}
	if consumed != (consumer != "") {
		return Secret{}, errors.New("consumed flag and consumer disagree")
	}
	return Secret{
		Moment:   Address(moment),
		Author:   Address(author),
		Nonce:    nonce,
		Consumed: consumed,
		Consumer: Address(consumer),
		Self:     self,
	}, nil
}
