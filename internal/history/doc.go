// Package history содержит снимок журнала событий asset и run.
//
// Снимок загружается до вычисления условий (Loader) и передаётся в
// assetgraph.View. Условия никогда не обращаются к хранилищу напрямую.
//
// MemoryStore хранит журнал в памяти; repo.EventRepo хранит его в PostgreSQL.
package history
