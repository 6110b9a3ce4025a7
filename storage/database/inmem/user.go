// Package inmemdb is the in-memory user repository used in DEV/TEST mode.
package inmemdb

import (
	"sort"
	"sync"
	"time"

	"github.com/NguetchuissiBrunel/xccm-gateway/core/user"
)

type (
	DB struct {
		user *userTable
	}

	userTable struct {
		sync.RWMutex
		table map[string]*user.User
	}

	userRepository struct {
		db *userTable
	}
)

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func Open() (*DB, error) {
	return &DB{user: &userTable{table: make(map[string]*user.User)}}, nil
}

func NewUserRepository(db *DB) user.Repository {
	return &userRepository{db: db.user}
}

func (repo *userRepository) query() []user.User {
	users := make([]user.User, 0, len(repo.db.table))
	for _, u := range repo.db.table {
		users = append(users, *u)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].CreatedAt.Before(users[j].CreatedAt) })
	return users
}

func (repo *userRepository) CheckUsernameUniqueness(username, email string, excludedUsers ...user.User) error {
	repo.db.RLock()
	defer repo.db.RUnlock()

	excluded := make(map[string]bool, len(excludedUsers))
	for _, usr := range excludedUsers {
		excluded[usr.ID] = true
	}

	for _, usr := range repo.query() {
		if excluded[usr.ID] {
			continue
		}
		if username != "" && usr.Username == username {
			return user.ErrUsernameExists
		}
		if email != "" && usr.Email == email {
			return user.ErrEmailExists
		}
	}
	return nil
}

func (repo *userRepository) CreateUser(usr user.User) (user.User, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	repo.db.table[usr.ID] = &usr
	return usr, nil
}

func (repo *userRepository) QueryAllUsers() ([]user.User, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()
	return repo.query(), nil
}

func (repo *userRepository) GetUserByID(id string) (user.User, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if usr, ok := repo.db.table[id]; ok {
		return *usr, nil
	}
	return user.User{}, user.ErrNotFound
}

func (repo *userRepository) GetUserByUsernameOrEmail(uname string) (user.User, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	for _, usr := range repo.query() {
		if usr.Username == uname || usr.Email == uname {
			return usr, nil
		}
	}
	return user.User{}, user.ErrNotFound
}

func (repo *userRepository) UpdateUser(usr user.User, isActive *bool) (user.User, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	orig, ok := repo.db.table[usr.ID]
	if !ok {
		return user.User{}, user.ErrNotFound
	}

	updated := *orig
	if usr.Name != "" {
		updated.Name = usr.Name
	}
	if usr.Username != "" {
		updated.Username = usr.Username
	}
	if usr.Email != "" {
		updated.Email = usr.Email
	}
	if usr.Role != "" {
		updated.Role = usr.Role
	}
	if usr.PhotoURL != "" {
		updated.PhotoURL = usr.PhotoURL
	}
	if usr.Extra != nil {
		updated.Extra = usr.Extra
	}
	if len(usr.PasswordHash) > 0 {
		updated.PasswordHash = usr.PasswordHash
	}
	if isActive != nil {
		updated.IsActive = isActive
	}
	if !usr.LastLogin.IsZero() {
		updated.LastLogin = usr.LastLogin
	}
	updated.UpdatedAt = time.Now().UTC()

	repo.db.table[usr.ID] = &updated
	return updated, nil
}

func (repo *userRepository) DeleteUsersByID(ids ...string) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	for _, id := range ids {
		delete(repo.db.table, id)
	}
	return nil
}
