package graphbuilder

import pgvector "github.com/pgvector/pgvector-go"

func toPgvector(v []float32) pgvector.Vector {
	return pgvector.NewVector(v)
}
