package sqlet

import (
	"context"
	"database/sql"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/canonical/sqlet/internal/template"
)

// stmtIDCount and dbIDCount are used to generate unique cache IDs.
var stmtIDCount uint64
var dbIDCount uint64

// statementCache caches the sql.Stmt objects associated with each
// sqlet.Statement. A sqlet.Statement can correspond to multiple sql.Stmt
// values prepared on different databases. The cache is indexed by the
// Statement ID and the DB ID.
//
// The cache closes sql.Stmt objects with a finalizer on the Statement.
// Similarly a finalizer is set on DB objects to close all statements
// prepared on the DB, close the DB, and remove references to the DB from
// the cache.
//
// Statements whose SQL text varies per bind (templates with multi-value
// parameters) never enter the cache; they are run directly on the database.
//
// The mutex must be locked when accessing either the stmtDBCache or the
// dbStmtCache.
type statementCache struct {
	stmtDBCache map[uint64]map[uint64]*sql.Stmt
	dbStmtCache map[uint64]map[uint64]bool
	mutex       sync.RWMutex
}

var once sync.Once
var singleStmtCache *statementCache

// newStatementCache returns the single instance of the statement cache.
func newStatementCache() *statementCache {
	once.Do(func() {
		singleStmtCache = &statementCache{
			stmtDBCache: map[uint64]map[uint64]*sql.Stmt{},
			dbStmtCache: map[uint64]map[uint64]bool{},
		}
	})
	return singleStmtCache
}

// newStatement returns a new sqlet.Statement and allocates it in the cache.
// A finalizer is set on the Statement to remove all sql.Stmt values
// associated with it from the cache and close them once the Statement is
// garbage collected.
func (sc *statementCache) newStatement(ct *template.CompiledTemplate) *Statement {
	cacheID := atomic.AddUint64(&stmtIDCount, 1)
	s := &Statement{ct: ct, cacheID: cacheID}
	sc.mutex.Lock()
	sc.stmtDBCache[cacheID] = map[uint64]*sql.Stmt{}
	sc.mutex.Unlock()
	runtime.SetFinalizer(s, sc.stmtFinalizer)
	return s
}

// newDB returns a new sqlet.DB and allocates it in the cache. A finalizer
// is set on the DB which removes it from the cache, closes all sql.Stmt
// values prepared upon it and then closes the DB, once the DB is garbage
// collected.
func (sc *statementCache) newDB(sqldb *sql.DB) *DB {
	cacheID := atomic.AddUint64(&dbIDCount, 1)
	sc.mutex.Lock()
	sc.dbStmtCache[cacheID] = map[uint64]bool{}
	sc.mutex.Unlock()
	db := &DB{sqldb: sqldb, cacheID: cacheID}
	runtime.SetFinalizer(db, sc.dbFinalizer)
	return db
}

// lookupStmt fetches the driver prepared statement for s on db, if one has
// already been prepared.
func (sc *statementCache) lookupStmt(db *DB, s *Statement) (*sql.Stmt, bool) {
	sc.mutex.RLock()
	defer sc.mutex.RUnlock()
	// The statement ID is only removed from the cache when the finalizer is
	// run, so it is always in stmtDBCache.
	sqlstmt, ok := sc.stmtDBCache[s.cacheID][db.cacheID]
	return sqlstmt, ok
}

// driverPrepareStmt prepares s on db and stores the prepared statement in
// the cache. Two goroutines may race to prepare the same statement; both
// preparations succeed and the loser's is closed. The race is benign
// because template compilation is deterministic, so the two statements are
// interchangeable.
func (sc *statementCache) driverPrepareStmt(ctx context.Context, db *DB, s *Statement, sqlText string) (*sql.Stmt, error) {
	sqlstmt, err := db.sqldb.PrepareContext(ctx, sqlText)
	if err != nil {
		return nil, err
	}
	sc.mutex.Lock()
	// Check if a statement has been inserted by someone else since we last
	// looked.
	sqlstmtAlt, ok := sc.stmtDBCache[s.cacheID][db.cacheID]
	if ok {
		sc.mutex.Unlock()
		sqlstmt.Close()
		return sqlstmtAlt, nil
	}
	sc.stmtDBCache[s.cacheID][db.cacheID] = sqlstmt
	sc.dbStmtCache[db.cacheID][s.cacheID] = true
	sc.mutex.Unlock()
	return sqlstmt, nil
}

// stmtFinalizer removes a Statement from the caches and closes every
// driver statement prepared from it.
func (sc *statementCache) stmtFinalizer(s *Statement) {
	sc.mutex.Lock()
	defer sc.mutex.Unlock()
	dbCache := sc.stmtDBCache[s.cacheID]
	for dbCacheID, sqlstmt := range dbCache {
		sqlstmt.Close()
		delete(sc.dbStmtCache[dbCacheID], s.cacheID)
	}
	delete(sc.stmtDBCache, s.cacheID)
}

// dbFinalizer closes and removes from the cache all sql.Stmt values
// prepared on the database, removes the database from the cache, then
// closes the sql.DB.
func (sc *statementCache) dbFinalizer(db *DB) {
	sc.mutex.Lock()
	defer sc.mutex.Unlock()
	stmtCacheIDs := sc.dbStmtCache[db.cacheID]
	for stmtCacheID := range stmtCacheIDs {
		dbCache := sc.stmtDBCache[stmtCacheID]
		dbCache[db.cacheID].Close()
		delete(dbCache, db.cacheID)
	}
	delete(sc.dbStmtCache, db.cacheID)
	db.sqldb.Close()
}
