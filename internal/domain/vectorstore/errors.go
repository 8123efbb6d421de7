package vectorstore

import "openresponses.ai/gateway/internal/domain/apierror"

// Error constructors for the vector store subsystem.

func ErrStoreNotFound(id string) *apierror.Error {
	return apierror.NotFound("vector store %s not found", id).WithCode("vector_store_not_found")
}

func ErrStoreFileNotFound(storeID, fileID string) *apierror.Error {
	return apierror.NotFound("file %s not found in vector store %s", fileID, storeID).WithCode("vector_store_file_not_found")
}

func ErrFileNotFound(fileID string) *apierror.Error {
	return apierror.NotFound("file %s not found", fileID).WithCode("file_not_found")
}

func ErrInvalidChunkingStrategy(reason string) *apierror.Error {
	return apierror.Validation("invalid chunking strategy: %s", reason).WithCode("invalid_chunking_strategy")
}

func ErrEmbeddingDimensionMismatch(want, got int) *apierror.Error {
	return apierror.Validation("embedding dimension mismatch: store uses %d, got %d", want, got).WithCode("embedding_dimension_mismatch")
}

func ErrStoreExpired(id string) *apierror.Error {
	return apierror.Validation("vector store %s is expired", id).WithCode("vector_store_expired")
}
