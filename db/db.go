package db

import (
	"context"
	"database/sql"
	"log"
	"time"

	"github.com/picofed/picofed/domain"
	"modernc.org/sqlite"
	sqlitelib "modernc.org/sqlite/lib"
)

// DB is the database struct.
type DB struct {
	db *sql.DB
}

const (
	// Users: exactly one row, fixed id 1 (single-tenant node).
	sqlCreateUsersTable = `CREATE TABLE IF NOT EXISTS users(
                        id integer NOT NULL PRIMARY KEY CHECK (id = 1),
                        username varchar(50) UNIQUE NOT NULL
                        )`
	sqlUpsertUser         = `INSERT OR REPLACE INTO users(id, username) VALUES (1, ?)`
	sqlSelectAnyUser      = `SELECT id, username FROM users LIMIT 1`
	sqlSelectUserByName   = `SELECT id, username FROM users WHERE username = ?`
	sqlSelectUserByUserId = `SELECT id, username FROM users WHERE id = ?`

	// Actors: local (user_id set) and cached remote identities.
	sqlCreateActorsTable = `CREATE TABLE IF NOT EXISTS actors(
                        id integer NOT NULL PRIMARY KEY AUTOINCREMENT,
                        user_id integer REFERENCES users(id),
                        uri text UNIQUE NOT NULL,
                        handle text NOT NULL,
                        name text,
                        inbox_url text NOT NULL,
                        shared_inbox_url text,
                        url text,
                        created timestamp NOT NULL DEFAULT CURRENT_TIMESTAMP
                        )`
	sqlUpsertLocalActor = `INSERT INTO actors(user_id, uri, handle, name, inbox_url, shared_inbox_url, url, created)
                        VALUES (1, ?, ?, ?, ?, ?, ?, ?)
                        ON CONFLICT (uri) DO UPDATE SET
                          handle = excluded.handle,
                          name = excluded.name,
                          inbox_url = excluded.inbox_url,
                          shared_inbox_url = excluded.shared_inbox_url,
                          url = excluded.url`
	sqlUpsertRemoteActor = `INSERT INTO actors(user_id, uri, handle, name, inbox_url, shared_inbox_url, url, created)
                        VALUES (NULL, ?, ?, ?, ?, ?, ?, ?)
                        ON CONFLICT (uri) DO UPDATE SET
                          handle = excluded.handle,
                          name = excluded.name,
                          inbox_url = excluded.inbox_url,
                          shared_inbox_url = excluded.shared_inbox_url,
                          url = excluded.url
                        RETURNING id`
	sqlSelectActorByURI = `SELECT id, user_id, uri, handle, name, inbox_url, shared_inbox_url, url, created
                        FROM actors WHERE uri = ?`
	sqlSelectLocalActor = `SELECT actors.id, actors.user_id, actors.uri, actors.handle, actors.name,
                        actors.inbox_url, actors.shared_inbox_url, actors.url, actors.created
                        FROM actors
                        INNER JOIN users ON users.id = actors.user_id
                        WHERE users.username = ?`

	// Keys: at most one pair per (user, algorithm), JWK-encoded halves.
	sqlCreateKeysTable = `CREATE TABLE IF NOT EXISTS keys(
                        user_id integer NOT NULL REFERENCES users(id),
                        type text NOT NULL,
                        private_key text NOT NULL,
                        public_key text NOT NULL,
                        PRIMARY KEY (user_id, type)
                        )`
	sqlInsertKeyIfAbsent = `INSERT INTO keys(user_id, type, private_key, public_key) VALUES (?, ?, ?, ?)
                        ON CONFLICT (user_id, type) DO NOTHING`
	sqlSelectKey         = `SELECT user_id, type, private_key, public_key FROM keys WHERE user_id = ? AND type = ?`
	sqlSelectKeysByUser  = `SELECT user_id, type, private_key, public_key FROM keys WHERE user_id = ?`

	// Follows: following is always the local actor. The unique pair keeps
	// a re-delivered Follow from stacking duplicate edges.
	sqlCreateFollowsTable = `CREATE TABLE IF NOT EXISTS follows(
                        id integer NOT NULL PRIMARY KEY AUTOINCREMENT,
                        following_id integer NOT NULL REFERENCES actors(id),
                        follower_id integer NOT NULL REFERENCES actors(id),
                        created timestamp NOT NULL DEFAULT CURRENT_TIMESTAMP,
                        UNIQUE (following_id, follower_id)
                        )`
	sqlInsertFollow = `INSERT INTO follows(following_id, follower_id, created) VALUES (?, ?, ?)
                        ON CONFLICT (following_id, follower_id) DO NOTHING`
	sqlDeleteFollow = `DELETE FROM follows
                        WHERE following_id = ?
                        AND follower_id IN (SELECT id FROM actors WHERE uri = ?)`
	sqlSelectFollowers = `SELECT follows.id, followers.uri, followers.inbox_url, followers.shared_inbox_url
                        FROM follows
                        INNER JOIN actors AS followers ON followers.id = follows.follower_id
                        INNER JOIN actors AS following ON following.id = follows.following_id
                        INNER JOIN users ON users.id = following.user_id
                        WHERE users.username = ? AND follows.id < ?
                        ORDER BY follows.id DESC
                        LIMIT ?`
	sqlCountFollowers = `SELECT COUNT(*)
                        FROM follows
                        INNER JOIN actors ON actors.id = follows.following_id
                        INNER JOIN users ON users.id = actors.user_id
                        WHERE users.username = ?`

	// Posts
	sqlCreatePostsTable = `CREATE TABLE IF NOT EXISTS posts(
                        id integer NOT NULL PRIMARY KEY AUTOINCREMENT,
                        actor_id integer NOT NULL REFERENCES actors(id),
                        content text NOT NULL,
                        created timestamp NOT NULL DEFAULT CURRENT_TIMESTAMP
                        )`
	sqlInsertPost = `INSERT INTO posts(actor_id, content, created) VALUES (?, ?, ?) RETURNING id`
	sqlSelectPost = `SELECT posts.id, posts.actor_id, posts.content, posts.created
                        FROM posts
                        INNER JOIN actors ON actors.id = posts.actor_id
                        INNER JOIN users ON users.id = actors.user_id
                        WHERE users.username = ? AND posts.id = ?`
	sqlSelectPostsByUsername = `SELECT posts.id, posts.actor_id, posts.content, posts.created
                        FROM posts
                        INNER JOIN actors ON actors.id = posts.actor_id
                        INNER JOIN users ON users.id = actors.user_id
                        WHERE users.username = ?
                        ORDER BY posts.created DESC
                        LIMIT ?`

	sqlCreateIndices = `
                        CREATE INDEX IF NOT EXISTS idx_follows_following_id ON follows(following_id);
                        CREATE INDEX IF NOT EXISTS idx_follows_follower_id ON follows(follower_id);
                        CREATE INDEX IF NOT EXISTS idx_posts_actor_id ON posts(actor_id);
                        CREATE INDEX IF NOT EXISTS idx_actors_user_id ON actors(user_id);
                        `
)

// Open opens (and if necessary initializes) the database at the given path.
func Open(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	// Configure connection pool for concurrent access
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(time.Hour)

	var journalMode string
	if err := sqlDB.QueryRow("PRAGMA journal_mode=WAL").Scan(&journalMode); err != nil {
		log.Printf("Warning: Failed to enable WAL mode: %v", err)
	} else {
		log.Printf("Database journal mode: %s", journalMode)
	}

	sqlDB.Exec("PRAGMA synchronous = NORMAL")
	sqlDB.Exec("PRAGMA busy_timeout = 5000")
	sqlDB.Exec("PRAGMA foreign_keys = ON")

	db := &DB{db: sqlDB}
	if err := db.CreateDB(); err != nil {
		return nil, err
	}
	return db, nil
}

// CreateDB creates the schema.
func (db *DB) CreateDB() error {
	return db.withTx(func(tx *sql.Tx) error {
		for _, stmt := range []string{
			sqlCreateUsersTable,
			sqlCreateActorsTable,
			sqlCreateKeysTable,
			sqlCreateFollowsTable,
			sqlCreatePostsTable,
			sqlCreateDeliveryQueueTable,
		} {
			if _, err := tx.Exec(stmt); err != nil {
				return err
			}
		}
		if _, err := tx.Exec(sqlCreateIndices); err != nil {
			log.Printf("Warning: Failed to create indices: %v", err)
		}
		return nil
	})
}

// CreateAccount writes the single local user and its actor row in one
// transaction. Re-running setup for the same node replaces nothing the
// caller didn't pass; callers check for an existing user first.
func (db *DB) CreateAccount(username string, actor *domain.Actor) error {
	return db.withTx(func(tx *sql.Tx) error {
		if _, err := tx.Exec(sqlUpsertUser, username); err != nil {
			return err
		}
		_, err := tx.Exec(sqlUpsertLocalActor,
			actor.URI,
			actor.Handle,
			actor.Name,
			actor.InboxURL,
			actor.SharedInboxURL,
			actor.URL,
			time.Now().UTC(),
		)
		return err
	})
}

func (db *DB) ReadAnyUser() (error, *domain.User) {
	row := db.db.QueryRow(sqlSelectAnyUser)
	var user domain.User
	err := row.Scan(&user.Id, &user.Username)
	if err == sql.ErrNoRows {
		return err, nil
	}
	return err, &user
}

func (db *DB) ReadUserByUsername(username string) (error, *domain.User) {
	row := db.db.QueryRow(sqlSelectUserByName, username)
	var user domain.User
	err := row.Scan(&user.Id, &user.Username)
	if err == sql.ErrNoRows {
		return err, nil
	}
	return err, &user
}

func (db *DB) ReadUserById(id int64) (error, *domain.User) {
	row := db.db.QueryRow(sqlSelectUserByUserId, id)
	var user domain.User
	err := row.Scan(&user.Id, &user.Username)
	if err == sql.ErrNoRows {
		return err, nil
	}
	return err, &user
}

// ReadLocalActorByUsername resolves the local account's actor row.
func (db *DB) ReadLocalActorByUsername(username string) (error, *domain.Actor) {
	return scanActor(db.db.QueryRow(sqlSelectLocalActor, username))
}

func (db *DB) ReadActorByURI(uri string) (error, *domain.Actor) {
	return scanActor(db.db.QueryRow(sqlSelectActorByURI, uri))
}

func scanActor(row *sql.Row) (error, *domain.Actor) {
	var actor domain.Actor
	var userId sql.NullInt64
	var name, sharedInbox, url sql.NullString
	err := row.Scan(&actor.Id, &userId, &actor.URI, &actor.Handle, &name,
		&actor.InboxURL, &sharedInbox, &url, &actor.Created)
	if err == sql.ErrNoRows {
		return err, nil
	}
	if err != nil {
		return err, nil
	}
	if userId.Valid {
		actor.UserId = &userId.Int64
	}
	actor.Name = name.String
	actor.SharedInboxURL = sharedInbox.String
	actor.URL = url.String
	return nil, &actor
}

// UpsertRemoteActor inserts or refreshes a cached remote actor by its
// canonical URI and fills in the row id.
func (db *DB) UpsertRemoteActor(actor *domain.Actor) error {
	return db.withTx(func(tx *sql.Tx) error {
		row := tx.QueryRow(sqlUpsertRemoteActor,
			actor.URI,
			actor.Handle,
			actor.Name,
			nullable(actor.InboxURL),
			nullable(actor.SharedInboxURL),
			nullable(actor.URL),
			time.Now().UTC(),
		)
		return row.Scan(&actor.Id)
	})
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// Keys

func (db *DB) InsertKeyIfAbsent(key *domain.Key) error {
	return db.withTx(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlInsertKeyIfAbsent, key.UserId, key.Type, key.PrivateKey, key.PublicKey)
		return err
	})
}

func (db *DB) ReadKey(userId int64, keyType string) (error, *domain.Key) {
	row := db.db.QueryRow(sqlSelectKey, userId, keyType)
	var key domain.Key
	err := row.Scan(&key.UserId, &key.Type, &key.PrivateKey, &key.PublicKey)
	if err == sql.ErrNoRows {
		return err, nil
	}
	return err, &key
}

func (db *DB) ReadKeysByUserId(userId int64) (error, map[string]domain.Key) {
	rows, err := db.db.Query(sqlSelectKeysByUser, userId)
	if err != nil {
		return err, nil
	}
	defer rows.Close()

	keys := make(map[string]domain.Key)
	for rows.Next() {
		var key domain.Key
		if err := rows.Scan(&key.UserId, &key.Type, &key.PrivateKey, &key.PublicKey); err != nil {
			return err, keys
		}
		keys[key.Type] = key
	}
	if err = rows.Err(); err != nil {
		return err, keys
	}
	return nil, keys
}

// Follows

func (db *DB) CreateFollow(followingId, followerId int64) error {
	return db.withTx(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlInsertFollow, followingId, followerId, time.Now().UTC())
		return err
	})
}

// DeleteFollow removes the edge between the local actor and the follower
// with the given URI. Deleting a missing edge is a no-op.
func (db *DB) DeleteFollow(followingId int64, followerURI string) error {
	return db.withTx(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlDeleteFollow, followingId, followerURI)
		return err
	})
}

// FollowerEdge pairs a follower recipient with the edge id used as the
// pagination cursor.
type FollowerEdge struct {
	EdgeId    int64
	Recipient domain.FollowerRecipient
}

// ReadFollowers lists followers of the named local account in reverse
// order of when they followed, starting below the given cursor (pass
// MaxCursor for the first page).
func (db *DB) ReadFollowers(username string, cursor int64, limit int) (error, *[]FollowerEdge) {
	rows, err := db.db.Query(sqlSelectFollowers, username, cursor, limit)
	if err != nil {
		return err, nil
	}
	defer rows.Close()

	var edges []FollowerEdge
	for rows.Next() {
		var edge FollowerEdge
		var sharedInbox sql.NullString
		if err := rows.Scan(&edge.EdgeId, &edge.Recipient.URI, &edge.Recipient.InboxURL, &sharedInbox); err != nil {
			return err, &edges
		}
		edge.Recipient.SharedInboxURL = sharedInbox.String
		edges = append(edges, edge)
	}
	if err = rows.Err(); err != nil {
		return err, &edges
	}
	return nil, &edges
}

// MaxCursor starts pagination from the newest edge.
const MaxCursor = int64(1) << 62

func (db *DB) CountFollowers(username string) (error, int) {
	row := db.db.QueryRow(sqlCountFollowers, username)
	var count int
	err := row.Scan(&count)
	return err, count
}

// Posts

func (db *DB) CreatePost(actorId int64, content string) (error, *domain.Post) {
	post := &domain.Post{ActorId: actorId, Content: content, Created: time.Now().UTC()}
	err := db.withTx(func(tx *sql.Tx) error {
		row := tx.QueryRow(sqlInsertPost, post.ActorId, post.Content, post.Created)
		return row.Scan(&post.Id)
	})
	if err != nil {
		return err, nil
	}
	return nil, post
}

// ReadPost resolves a post by id, but only when the named local account
// owns it.
func (db *DB) ReadPost(username string, postId int64) (error, *domain.Post) {
	row := db.db.QueryRow(sqlSelectPost, username, postId)
	var post domain.Post
	err := row.Scan(&post.Id, &post.ActorId, &post.Content, &post.Created)
	if err == sql.ErrNoRows {
		return err, nil
	}
	return err, &post
}

func (db *DB) ReadPostsByUsername(username string, limit int) (error, *[]domain.Post) {
	rows, err := db.db.Query(sqlSelectPostsByUsername, username, limit)
	if err != nil {
		return err, nil
	}
	defer rows.Close()

	var posts []domain.Post
	for rows.Next() {
		var post domain.Post
		if err := rows.Scan(&post.Id, &post.ActorId, &post.Content, &post.Created); err != nil {
			return err, &posts
		}
		posts = append(posts, post)
	}
	if err = rows.Err(); err != nil {
		return err, &posts
	}
	return nil, &posts
}

// withTx runs the given function within a transaction.
func (db *DB) withTx(f func(tx *sql.Tx) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()
	tx, err := db.db.BeginTx(ctx, nil)
	if err != nil {
		log.Printf("error starting transaction: %s", err)
		return err
	}
	for {
		err = f(tx)
		if err != nil {
			serr, ok := err.(*sqlite.Error)
			if ok && serr.Code() == sqlitelib.SQLITE_BUSY {
				continue
			}
			tx.Rollback()
			log.Printf("error in transaction: %s", err)
			return err
		}
		err = tx.Commit()
		if err != nil {
			log.Printf("error committing transaction: %s", err)
			return err
		}
		break
	}
	return nil
}
