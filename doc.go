/*
Riker is an ORM for go services that track changes to entities and save them to PostgreSQL or SQLite in batches.

Usage:

* Identity resolution and change tracking per session
* Batched INSERT, UPDATE and DELETE statements ordered by foreign key dependencies
* Generated keys (identity columns, uuids, sequential counters and Hi-Lo sequences)
* Optimistic concurrency through concurrency tokens
* Enforcing multitenancy

Initialization:

Options are read with viper from a config file or RIKER_ prefixed environment variables. The standard PG* variables are honored for the connection.

	options, err := config.Load(nil)
	store, err := riker.Open(options, logger, prometheus.DefaultRegisterer)

A store holds the connection pool, the model and the Hi-Lo block cache. Register every entity type before creating sessions.

	err = store.Register(Customer{}, Order{})

When an existing *sql.DB should be used, build the store with `riker.NewStore(riker.Props{DB: db, Options: options})`.

Sessions:

A session is a unit of work for one tenant. It is not safe for concurrent use, create one per request.

	session := store.NewSession(orgID)

	customer := &Customer{Name: "Acme"}
	order := &Order{Customer: customer, Status: "open"}
	err = session.Add(ctx, customer)
	err = session.Add(ctx, order)

	rows, err := session.SaveChanges(true)

Add marks an entity to be inserted. Keys are generated when the entity is added. Identity keys get a temporary negative value until the insert returns the real one, and the foreign keys of dependents pointing at it are fixed up before they are inserted.

Attach tracks an entity as it is in the database. Update tracks an entity as modified, or as added when it has no key. Remove marks an entity to be deleted.

Find and Load query the database and track the results as Unchanged. A row that is already tracked comes back as the tracked instance.

	found, err := session.Find(ctx, Customer{}, int64(100))
	orders, err := session.Load(ctx, &Order{Status: "open"}, "Customer")

Changes to tracked entities are detected when SaveChanges is called. Only modified columns are written.

Transactions:

SaveChanges runs every batch in one transaction. It commits when all batches succeed and rolls back otherwise, leaving the tracked entities as they were before the save.

To save as part of a larger transaction, hand it to the session. The batches then run inside a savepoint and the caller commits.

	tx, err := store.GetDB().BeginTx(ctx, nil)
	session.UseTransaction(tx)
	_, err = session.SaveChanges(true)
	err = tx.Commit()

Struct Tags:

Structs are mapped to tables through riker struct tags.

	type Order struct {
		Metadata       metadata.Metadata `riker:"tablename=orders,schema=sales"`
		ID             int64             `riker:"primary_key,column=id,generated=hilo,sequence=order_ids,block_size=10"`
		OrganizationID string            `riker:"multitenancy_key,column=organization_id"`
		CustomerID     int64             `riker:"foreign_key,required,related=Customer,column=customer_id,on_delete=cascade"`
		Customer       *Customer
		Version        int               `riker:"concurrency_token,column=version"`
		UpdatedAt      time.Time         `riker:"computed=always,column=updated_at"`
	}

Table Metadata:
	A field of the type `metadata.Metadata` is required in all structs used with riker.

	tablename:

		Specifies the name of the table in the database.

	schema:

		Specifies the schema of the table. Optional.

Column Tags:

	column:

		Specifies the column name that is associated with this field. Fields without a column are not persisted.

	primary_key:

		Indicates that this column is part of the primary key. Composite keys repeat it on each field.

	multitenancy_key:

		Set from the session tenant when an entity is added. It is added to all `WHERE` clauses.

	concurrency_token:

		The original value is checked on every update and delete. When no row matches, SaveChanges fails with a concurrency error and nothing is saved.

	generated:

		One of identity, sequential, uuid or hilo. Hi-Lo keys name a store sequence with `sequence=`, and optionally `sequence_schema=` and `block_size=`. Call `store.EnsureSequences` to create them.

	computed:

		One of add, update or always. The store computes the value and it is read back after the statement runs.

	encrypted:

		Stored as AES-GCM ciphertext. Set `encryption_key` in the options or call `crypto.SetEncryptionKey`.

	jsonb:

		Stored as JSON.

Relationship Tags:

	foreign_key:

		Marks the field holding the key of a principal. `related=` names the navigation field holding the principal. Add `required` when the key can't be null, and `on_delete=` with cascade, set_null or restrict.

Error types:

	`ModelNotFoundError` is returned by Find when no row has the key.

	Use `riker.IsConcurrencyError` to check for concurrency conflicts, and `riker.IsDependencyCycle` for changes that can't be ordered.
*/
package riker // import "github.com/skuid/riker"
