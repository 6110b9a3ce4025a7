package sqlxrepos

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/NguetchuissiBrunel/xccm-gateway/core/user"
)

type userRepository struct {
	db *sqlx.DB
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db *sql.DB) *userRepository {
	return &userRepository{db: sqlx.NewDb(db, "postgres")}
}

// userRow maps the "user" table.
type userRow struct {
	ID           string    `db:"id"`
	Name         string    `db:"name"`
	Username     string    `db:"username"`
	Email        string    `db:"email"`
	Role         string    `db:"role"`
	PhotoURL     string    `db:"photo_url"`
	Extra        []byte    `db:"extra"`
	IsActive     bool      `db:"is_active"`
	PasswordHash []byte    `db:"password_hash"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
	LastLogin    time.Time `db:"last_login"`
}

func (r userRow) user() (user.User, error) {
	usr := user.User{
		ID:           r.ID,
		Name:         r.Name,
		Username:     r.Username,
		Email:        r.Email,
		Role:         r.Role,
		PhotoURL:     r.PhotoURL,
		IsActive:     &r.IsActive,
		PasswordHash: r.PasswordHash,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
		LastLogin:    r.LastLogin,
	}
	if len(r.Extra) > 0 {
		if err := json.Unmarshal(r.Extra, &usr.Extra); err != nil {
			return user.User{}, errors.Wrap(err, "decoding extra attributes")
		}
	}
	return usr, nil
}

func newRow(usr user.User) (userRow, error) {
	extra := []byte("{}")
	if usr.Extra != nil {
		var err error
		if extra, err = json.Marshal(usr.Extra); err != nil {
			return userRow{}, errors.Wrap(err, "encoding extra attributes")
		}
	}
	active := true
	if usr.IsActive != nil {
		active = *usr.IsActive
	}
	return userRow{
		ID:           usr.ID,
		Name:         usr.Name,
		Username:     usr.Username,
		Email:        usr.Email,
		Role:         usr.Role,
		PhotoURL:     usr.PhotoURL,
		Extra:        extra,
		IsActive:     active,
		PasswordHash: usr.PasswordHash,
		CreatedAt:    usr.CreatedAt,
		UpdatedAt:    usr.UpdatedAt,
		LastLogin:    usr.LastLogin,
	}, nil
}

func (repo *userRepository) CheckUsernameUniqueness(username, email string, excludedUsers ...user.User) error {
	exclIDs := make([]string, 0, len(excludedUsers))
	for _, usr := range excludedUsers {
		exclIDs = append(exclIDs, usr.ID)
	}

	check := func(column, value string, matchErr error) error {
		if value == "" {
			return nil
		}
		query := `SELECT COUNT(*) FROM "user" WHERE ` + column + ` = ?`
		args := []interface{}{value}
		if len(exclIDs) > 0 {
			var err error
			query, args, err = sqlx.In(query+` AND id NOT IN (?)`, value, exclIDs)
			if err != nil {
				return errors.Wrap(err, "building uniqueness query")
			}
		}
		var count int
		if err := repo.db.Get(&count, repo.db.Rebind(query), args...); err != nil {
			return errors.Wrap(err, "checking uniqueness")
		}
		if count > 0 {
			return matchErr
		}
		return nil
	}

	if err := check("username", username, user.ErrUsernameExists); err != nil {
		return err
	}
	return check("email", email, user.ErrEmailExists)
}

func (repo *userRepository) CreateUser(usr user.User) (user.User, error) {
	row, err := newRow(usr)
	if err != nil {
		return user.User{}, err
	}
	const q = `
		INSERT INTO "user" (id, name, username, email, role, photo_url, extra, is_active, password_hash, created_at, updated_at, last_login)
		VALUES (:id, :name, :username, :email, :role, :photo_url, :extra, :is_active, :password_hash, :created_at, :updated_at, :last_login)`
	if _, err = repo.db.NamedExec(q, row); err != nil {
		return user.User{}, errors.Wrap(err, "inserting user")
	}
	return usr, nil
}

func (repo *userRepository) QueryAllUsers() ([]user.User, error) {
	var rows []userRow
	if err := repo.db.Select(&rows, `SELECT * FROM "user"`); err != nil {
		return nil, errors.Wrap(err, "querying users")
	}
	users := make([]user.User, 0, len(rows))
	for _, row := range rows {
		usr, err := row.user()
		if err != nil {
			return nil, err
		}
		users = append(users, usr)
	}
	return users, nil
}

func (repo *userRepository) GetUserByID(id string) (user.User, error) {
	return repo.getBy(`SELECT * FROM "user" WHERE id = $1`, id)
}

func (repo *userRepository) GetUserByUsernameOrEmail(uname string) (user.User, error) {
	return repo.getBy(`SELECT * FROM "user" WHERE username = $1 OR email = $1`, uname)
}

func (repo *userRepository) getBy(query string, arg interface{}) (user.User, error) {
	var row userRow
	if err := repo.db.Get(&row, query, arg); err != nil {
		if err == sql.ErrNoRows {
			return user.User{}, user.ErrNotFound
		}
		return user.User{}, errors.Wrap(err, "querying user")
	}
	return row.user()
}

func (repo *userRepository) UpdateUser(usr user.User, isActive *bool) (user.User, error) {
	orig, err := repo.GetUserByID(usr.ID)
	if err != nil {
		return user.User{}, err
	}

	if usr.Name != "" {
		orig.Name = usr.Name
	}
	if usr.Username != "" {
		orig.Username = usr.Username
	}
	if usr.Email != "" {
		orig.Email = usr.Email
	}
	if usr.Role != "" {
		orig.Role = usr.Role
	}
	if usr.PhotoURL != "" {
		orig.PhotoURL = usr.PhotoURL
	}
	if usr.Extra != nil {
		orig.Extra = usr.Extra
	}
	if len(usr.PasswordHash) > 0 {
		orig.PasswordHash = usr.PasswordHash
	}
	if isActive != nil {
		orig.IsActive = isActive
	}
	if !usr.LastLogin.IsZero() {
		orig.LastLogin = usr.LastLogin
	}
	orig.UpdatedAt = time.Now().UTC()

	row, err := newRow(orig)
	if err != nil {
		return user.User{}, err
	}
	const q = `
		UPDATE "user"
		SET name = :name, username = :username, email = :email, role = :role, photo_url = :photo_url,
		    extra = :extra, is_active = :is_active, password_hash = :password_hash,
		    updated_at = :updated_at, last_login = :last_login
		WHERE id = :id`
	if _, err = repo.db.NamedExec(q, row); err != nil {
		return user.User{}, errors.Wrap(err, "updating user")
	}
	return orig, nil
}

func (repo *userRepository) DeleteUsersByID(ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	query, args, err := sqlx.In(`DELETE FROM "user" WHERE id IN (?)`, ids)
	if err != nil {
		return errors.Wrap(err, "building delete query")
	}
	if _, err = repo.db.Exec(repo.db.Rebind(query), args...); err != nil {
		return errors.Wrap(err, "deleting users")
	}
	return nil
}
