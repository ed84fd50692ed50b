package encfsgo

import (
	"bytes"
	"testing"
)

func TestWrapUnwrapVolumeKeyRoundTrip(t *testing.T) {
	cfg := DefaultVolumeConfig()
	salt, err := GenerateSalt(20)
	if err != nil {
		t.Fatalf("GenerateSalt: %v", err)
	}
	cfg.Salt = salt

	vk, err := GenerateVolumeKey(cfg.KeySize)
	if err != nil {
		t.Fatalf("GenerateVolumeKey: %v", err)
	}

	kek := DerivePasswordKEK(cfg, "correct horse battery staple")
	wrapped, err := WrapVolumeKey(cfg, kek, vk)
	if err != nil {
		t.Fatalf("WrapVolumeKey: %v", err)
	}
	cfg.EncodedKeyData = wrapped

	recovered, err := UnwrapVolumeKey(cfg, kek)
	if err != nil {
		t.Fatalf("UnwrapVolumeKey: %v", err)
	}
	if !bytes.Equal(recovered.Key, vk.Key) {
		t.Errorf("recovered key does not match original:\ngot:  %x\nwant: %x", recovered.Key, vk.Key)
	}
	if !bytes.Equal(recovered.IV, vk.IV) {
		t.Errorf("recovered IV does not match original:\ngot:  %x\nwant: %x", recovered.IV, vk.IV)
	}
}

func TestUnwrapVolumeKeyWrongPassword(t *testing.T) {
	cfg := DefaultVolumeConfig()
	salt, err := GenerateSalt(20)
	if err != nil {
		t.Fatalf("GenerateSalt: %v", err)
	}
	cfg.Salt = salt

	vk, err := GenerateVolumeKey(cfg.KeySize)
	if err != nil {
		t.Fatalf("GenerateVolumeKey: %v", err)
	}

	kek := DerivePasswordKEK(cfg, "the-right-password")
	wrapped, err := WrapVolumeKey(cfg, kek, vk)
	if err != nil {
		t.Fatalf("WrapVolumeKey: %v", err)
	}
	cfg.EncodedKeyData = wrapped

	wrongKEK := DerivePasswordKEK(cfg, "the-wrong-password")
	_, err = UnwrapVolumeKey(cfg, wrongKEK)
	if err == nil {
		t.Fatal("expected an error unwrapping with the wrong password")
	}
	if !IsInvalidPasswordError(err) {
		t.Fatalf("expected InvalidPasswordError, got %T: %v", err, err)
	}
	if IsCorruptDataError(err) {
		t.Fatal("a wrong password must never surface as CorruptDataError")
	}
}

func TestDerivePasswordKEKDependsOnSalt(t *testing.T) {
	cfg1 := DefaultVolumeConfig()
	cfg1.Salt = []byte("saltsaltsaltsaltsalt")
	cfg2 := DefaultVolumeConfig()
	cfg2.Salt = []byte("differentsaltvalue!!")

	k1 := DerivePasswordKEK(cfg1, "password")
	k2 := DerivePasswordKEK(cfg2, "password")
	if bytes.Equal(k1, k2) {
		t.Fatal("different salts must derive different KEKs")
	}
}

func TestGenerateVolumeKeyRejectsBadKeySize(t *testing.T) {
	if _, err := GenerateVolumeKey(100); err == nil {
		t.Fatal("expected an error for an unsupported key size")
	}
}

func TestVolumeKeyZero(t *testing.T) {
	vk, err := GenerateVolumeKey(256)
	if err != nil {
		t.Fatalf("GenerateVolumeKey: %v", err)
	}
	vk.Zero()
	for _, b := range vk.Key {
		if b != 0 {
			t.Fatal("Zero did not clear the key")
		}
	}
	for _, b := range vk.IV {
		if b != 0 {
			t.Fatal("Zero did not clear the IV")
		}
	}
}
