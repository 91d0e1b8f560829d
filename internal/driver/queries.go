package driver

var IndexQueries = []string{
	"CREATE INDEX ON :Entity(id);",
	"CREATE INDEX ON :Entity(domain_id);",
	"CREATE INDEX ON :Card(id);",
	"CREATE INDEX ON :Value(value);",
}

const (
	SaveEntityQuery = `
		MERGE (n:Entity {id: $id})
		SET n.name = $name,
			n.domain_id = $domain_id,
			n.entity_type = $entity_type,
			n.aliases = $aliases,
			n.description = $description,
			n.confidence = $confidence,
			n.created_at = $created_at
		RETURN n.id AS id
	`

	SaveEntityFactQuery = `
		MATCH (s:Entity {id: $subject_id})
		MATCH (o:Entity {id: $object_id})
		MERGE (s)-[r:FACT {id: $id}]->(o)
		SET r.predicate = $predicate,
			r.confidence = $confidence,
			r.method = $method,
			r.negated = $negated,
			r.valid_from = $valid_from
		RETURN r.id AS id
	`

	SaveValueFactQuery = `
		MATCH (s:Entity {id: $subject_id})
		MERGE (v:Value {value: $value, object_type: $object_type})
		MERGE (s)-[r:FACT {id: $id}]->(v)
		SET r.predicate = $predicate,
			r.confidence = $confidence,
			r.method = $method,
			r.negated = $negated,
			r.valid_from = $valid_from
		RETURN r.id AS id
	`

	SaveMentionQuery = `
		MERGE (c:Card {id: $card_id})
		WITH c
		MATCH (e:Entity {id: $entity_id})
		MERGE (c)-[m:MENTIONS {id: $id}]->(e)
		SET m.text = $text,
			m.source_field = $source_field,
			m.confidence = $confidence,
			m.method = $method
		RETURN m.id AS id
	`

	ExpireFactQuery = `
		MATCH ()-[r:FACT {id: $id}]->()
		SET r.valid_until = $valid_until
		RETURN r.id AS id
	`

	DeleteEntityQuery = `
		MATCH (n:Entity {id: $id})
		DETACH DELETE n
	`
)
