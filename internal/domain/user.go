// Package domain declares the annotation service's entity classes: users,
// the sounds they publish and the annotations they attach to sounds.
package domain

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/JohnVinyard/annotate-api-sub000/internal/entity"
)

// UserType classifies accounts.
type UserType string

const (
	Human      UserType = "human"
	Featurebot UserType = "featurebot"
	Dataset    UserType = "dataset"
	Aggregator UserType = "aggregator"
)

// UserTypes lists every UserType.
var UserTypes = []UserType{Human, Featurebot, Dataset, Aggregator}

// Users is the user entity class.
var Users = entity.NewClass("User", func() entity.Entity { return new(User) })

// User fields. Everything except the creation date is writable only by the
// user, and only about_me, password and info_url change after registration.
var (
	UserDateCreated = entity.NewField(Users, "date_created", entity.Options[time.Time]{
		Default:   now,
		Immutable: true,
		Transform: storedTime,
	})
	UserDeleted = entity.NewField(Users, "deleted", entity.Options[bool]{
		Default: entity.Const(false),
		Mutable: entity.Self,
	})
	UserName = entity.NewField(Users, "user_name", entity.Options[string]{
		Required:  true,
		Transform: NormalizeName,
		Validate:  nonEmpty,
		Mutable:   entity.Self,
	})
	UserPassword = entity.NewField(Users, "password", entity.Options[string]{
		Required:  true,
		Transform: HashPassword,
		Validate:  nonEmpty,
		Visible:   entity.Never,
		Mutable:   entity.Self,
	})
	UserKind = entity.NewEnum(Users, "user_type", entity.Options[UserType]{
		Required: true,
		Mutable:  entity.Self,
	}, UserTypes...)
	UserEmail = entity.NewField(Users, "email", entity.Options[string]{
		Required:  true,
		Immutable: true,
		Transform: NormalizeEmail,
		Validate:  validEmail,
		Visible:   entity.Self,
		Mutable:   entity.Self,
	})
	UserAboutMe = entity.NewField(Users, "about_me", entity.Options[string]{
		Mutable: entity.Self,
	})
	UserInfoURL = entity.NewField(Users, "info_url", entity.Options[string]{
		Validate: optionalURL,
		Mutable:  entity.Self,
	})
)

func init() {
	Users.AddCheck(aboutMeUnlessHuman)
}

// aboutMeUnlessHuman requires machine accounts to describe themselves.
func aboutMeUnlessHuman(e entity.Entity) (string, error) {
	if UserKind.Get(e) != Human && strings.TrimSpace(UserAboutMe.Get(e)) == "" {
		return UserAboutMe.Name(), errors.New("required unless user_type is human")
	}
	return "", nil
}

// User is an account.
type User struct {
	entity.Base
}

func (u *User) DateCreated() time.Time { return UserDateCreated.Get(u) }
func (u *User) Deleted() bool          { return UserDeleted.Get(u) }
func (u *User) UserName() string       { return UserName.Get(u) }
func (u *User) Type() UserType         { return UserKind.Get(u) }
func (u *User) Email() string          { return UserEmail.Get(u) }
func (u *User) AboutMe() string        { return UserAboutMe.Get(u) }
func (u *User) InfoURL() string        { return UserInfoURL.Get(u) }

var userUpdatable = []entity.Descriptor{UserAboutMe, UserPassword, UserInfoURL}

// CreateUser registers a new account. The user is its own creator.
func CreateUser(ctx context.Context, values entity.Values) (*User, error) {
	if err := refuse(Users, values, UserDateCreated, UserDeleted); err != nil {
		return nil, err
	}
	e, err := entity.Create(ctx, Users, nil, values)
	if err != nil {
		return nil, err
	}
	return e.(*User), nil
}

// UpdateUser changes u's profile on behalf of actor.
func UpdateUser(u *User, actor entity.Entity, values entity.Values) error {
	if err := restrict(Users, values, userUpdatable...); err != nil {
		return err
	}
	return entity.Update(u, actor, values)
}

// Delete soft-deletes u on behalf of actor.
func (u *User) Delete(actor entity.Entity) error {
	return UserDeleted.Set(u, entity.As(actor, true))
}
