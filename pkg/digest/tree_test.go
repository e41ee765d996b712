package digest

import (
	"crypto/rand"
	"testing"
)

func TestNewTreeRejectsEmptyData(t *testing.T) {
	_, err := NewTree(map[string][]byte{})
	if err == nil {
		t.Error("expected error for empty data, got nil")
	}
}

func TestNewTreeSingleEntry(t *testing.T) {
	tree, err := NewTree(map[string][]byte{"key1": []byte("value1")})
	if err != nil {
		t.Fatalf("failed to create tree: %v", err)
	}
	if tree.Root == nil {
		t.Error("expected root node, got nil")
	}
}

func TestGet(t *testing.T) {
	data := map[string][]byte{
		"key1": []byte("value1"),
		"key2": []byte("value2"),
	}

	tree, err := NewTree(data)
	if err != nil {
		t.Fatalf("failed to create tree: %v", err)
	}

	val, exists := tree.Get([]byte("key1"))
	if !exists || string(val) != "value1" {
		t.Errorf("expected value1, got %s (exists=%v)", val, exists)
	}

	_, exists = tree.Get([]byte("nonexistent"))
	if exists {
		t.Error("expected key to not exist")
	}
}

func TestProofRoundTrips(t *testing.T) {
	data := map[string][]byte{
		"key1": []byte("value1"),
		"key2": []byte("value2"),
		"key3": []byte("value3"),
	}

	tree, err := NewTree(data)
	if err != nil {
		t.Fatalf("failed to create tree: %v", err)
	}

	proof, err := tree.GetProof([]byte("key1"))
	if err != nil {
		t.Fatalf("failed to get proof: %v", err)
	}
	if len(proof) == 0 {
		t.Error("expected non-empty proof")
	}

	if !VerifyProof(tree.RootHash(), []byte("key1"), []byte("value1"), proof) {
		t.Error("proof verification failed")
	}

	_, err = tree.GetProof([]byte("nonexistent"))
	if err == nil {
		t.Error("expected error for non-existent key")
	}
}

func TestVerifyProofRejectsTamperedInput(t *testing.T) {
	data := map[string][]byte{
		"key1": []byte("value1"),
		"key2": []byte("value2"),
	}

	tree, err := NewTree(data)
	if err != nil {
		t.Fatalf("failed to create tree: %v", err)
	}

	proof, err := tree.GetProof([]byte("key1"))
	if err != nil {
		t.Fatalf("failed to get proof: %v", err)
	}

	if !VerifyProof(tree.RootHash(), []byte("key1"), []byte("value1"), proof) {
		t.Error("proof verification failed for correct key-value pair")
	}
	if VerifyProof(tree.RootHash(), []byte("key1"), []byte("wrongvalue"), proof) {
		t.Error("proof verification should fail for incorrect value")
	}
	if VerifyProof(tree.RootHash(), []byte("wrongkey"), []byte("value1"), proof) {
		t.Error("proof verification should fail for incorrect key")
	}
}

func TestLargeTree(t *testing.T) {
	data := make(map[string][]byte)
	for i := 0; i < 200; i++ {
		key := make([]byte, 10)
		value := make([]byte, 100)
		rand.Read(key)
		rand.Read(value)
		data[string(key)] = value
	}

	tree, err := NewTree(data)
	if err != nil {
		t.Fatalf("failed to create large tree: %v", err)
	}

	checked := 0
	for k, v := range data {
		val, exists := tree.Get([]byte(k))
		if !exists || string(val) != string(v) {
			t.Errorf("failed to get value for key %q", k)
		}

		proof, err := tree.GetProof([]byte(k))
		if err != nil {
			t.Fatalf("failed to get proof for key %q: %v", k, err)
		}
		if !VerifyProof(tree.RootHash(), []byte(k), v, proof) {
			t.Errorf("proof verification failed for key %q", k)
		}

		checked++
		if checked >= 10 {
			break
		}
	}
}
