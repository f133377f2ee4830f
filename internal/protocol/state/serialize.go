package state

import (
	"fmt"

	"signalcore/internal/codec"
	"signalcore/internal/crypto"
	"signalcore/internal/protocol/ratchet"
)

// Serialize encodes the record as a RecordStructure.
func (r *SessionRecord) Serialize() []byte {
	enc := codec.NewEncoder()
	if r.current != nil {
		enc.Message(1, r.current.encode())
	}
	for _, s := range r.previous {
		enc.Message(2, s.encode())
	}
	return enc.Encoded()
}

// DeserializeSessionRecord decodes a RecordStructure.
func DeserializeSessionRecord(b []byte) (*SessionRecord, error) {
	r := &SessionRecord{}
	err := codec.Walk(b, func(f codec.Field) error {
		if f.Num != 1 && f.Num != 2 {
			return nil
		}
		raw, err := f.Bytes()
		if err != nil {
			return err
		}
		s, err := DeserializeSessionState(raw)
		if err != nil {
			return err
		}
		if f.Num == 1 {
			r.current = s
		} else {
			r.previous = append(r.previous, s)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("session record: %w", err)
	}
	return r, nil
}

// Serialize encodes the state as a SessionStructure.
func (s *SessionState) Serialize() []byte { return s.encode().Encoded() }

func (s *SessionState) encode() *codec.Encoder {
	enc := codec.NewEncoder().
		OptUint32(1, s.version).
		Bytes(2, s.localIdentity.Serialize())
	if s.remoteIdentity != nil {
		enc.Bytes(3, s.remoteIdentity.Serialize())
	}
	enc.OptBytes(4, s.rootKey.Key()).
		OptUint32(5, s.previousCounter)
	if sc := s.senderChain; sc != nil {
		enc.Message(6, codec.NewEncoder().
			Bytes(1, sc.ratchetKey.PublicKey.Serialize()).
			Bytes(2, sc.ratchetKey.PrivateKey.Serialize()).
			Message(3, encodeChainKey(sc.chainKey)))
	}
	for _, rc := range s.receiverChains {
		chain := codec.NewEncoder().
			Bytes(1, rc.ratchetKey.Serialize()).
			Message(3, encodeChainKey(rc.chainKey))
		for _, mk := range rc.messageKeys {
			chain.Message(4, codec.NewEncoder().
				OptUint32(1, mk.Counter).
				Bytes(2, mk.CipherKey).
				Bytes(3, mk.MACKey).
				Bytes(4, mk.IV))
		}
		enc.Message(7, chain)
	}
	if p := s.pendingPreKey; p != nil {
		pending := codec.NewEncoder()
		if p.PreKeyID != nil {
			pending.OptUint32(1, *p.PreKeyID)
		}
		pending.Bytes(2, p.BaseKey.Serialize())
		if p.SignedPreKeyID != 0 {
			pending.Int32(3, int32(p.SignedPreKeyID))
		}
		enc.Message(9, pending)
	}
	enc.OptUint32(10, s.remoteRegistrationID).
		OptUint32(11, s.localRegistrationID).
		OptBytes(13, s.aliceBaseKey)
	if p := s.pendingPreKey; p != nil && p.KyberPreKeyID != nil {
		enc.Message(15, codec.NewEncoder().
			OptUint32(1, *p.KyberPreKeyID).
			Bytes(2, p.KyberCiphertext))
	}
	return enc
}

func encodeChainKey(ck ratchet.ChainKey) *codec.Encoder {
	return codec.NewEncoder().OptUint32(1, ck.Index()).OptBytes(2, ck.Key())
}

// DeserializeSessionState decodes a SessionStructure.
func DeserializeSessionState(b []byte) (*SessionState, error) {
	s := &SessionState{}
	var (
		pending *PendingPreKey
		kyberID *uint32
		kyberCT []byte
	)
	err := codec.Walk(b, func(f codec.Field) error {
		var err error
		switch f.Num {
		case 1:
			s.version, err = f.Uint32()
		case 2:
			var raw []byte
			if raw, err = f.Bytes(); err == nil {
				s.localIdentity, err = crypto.DeserializeIdentityKey(raw)
			}
		case 3:
			var raw []byte
			if raw, err = f.Bytes(); err == nil {
				var id crypto.IdentityKey
				if id, err = crypto.DeserializeIdentityKey(raw); err == nil {
					s.remoteIdentity = &id
				}
			}
		case 4:
			var raw []byte
			if raw, err = f.Bytes(); err == nil {
				s.rootKey, err = ratchet.NewRootKey(raw)
			}
		case 5:
			s.previousCounter, err = f.Uint32()
		case 6:
			var raw []byte
			if raw, err = f.Bytes(); err == nil {
				s.senderChain, err = decodeSenderChain(raw)
			}
		case 7:
			var raw []byte
			if raw, err = f.Bytes(); err == nil {
				var rc *receiverChain
				if rc, err = decodeReceiverChain(raw); err == nil {
					s.receiverChains = append(s.receiverChains, rc)
				}
			}
		case 9:
			var raw []byte
			if raw, err = f.Bytes(); err == nil {
				pending, err = decodePendingPreKey(raw)
			}
		case 10:
			s.remoteRegistrationID, err = f.Uint32()
		case 11:
			s.localRegistrationID, err = f.Uint32()
		case 13:
			s.aliceBaseKey, err = f.Bytes()
		case 15:
			var raw []byte
			if raw, err = f.Bytes(); err == nil {
				kyberID, kyberCT, err = decodePendingKyber(raw)
			}
		}
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("session state: %w", err)
	}
	if pending != nil {
		pending.KyberPreKeyID = kyberID
		pending.KyberCiphertext = kyberCT
		s.pendingPreKey = pending
	}
	return s, nil
}

func decodeChainKey(b []byte) (ratchet.ChainKey, error) {
	var (
		index uint32
		key   []byte
	)
	err := codec.Walk(b, func(f codec.Field) error {
		var err error
		switch f.Num {
		case 1:
			index, err = f.Uint32()
		case 2:
			key, err = f.Bytes()
		}
		return err
	})
	if err != nil {
		return ratchet.ChainKey{}, err
	}
	return ratchet.NewChainKey(key, index)
}

func decodeSenderChain(b []byte) (*senderChain, error) {
	var (
		sc        senderChain
		pub, priv []byte
	)
	err := codec.Walk(b, func(f codec.Field) error {
		var err error
		switch f.Num {
		case 1:
			pub, err = f.Bytes()
		case 2:
			priv, err = f.Bytes()
		case 3:
			var raw []byte
			if raw, err = f.Bytes(); err == nil {
				sc.chainKey, err = decodeChainKey(raw)
			}
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	if sc.ratchetKey.PublicKey, err = crypto.DeserializePublicKey(pub); err != nil {
		return nil, err
	}
	if sc.ratchetKey.PrivateKey, err = crypto.DeserializePrivateKey(priv); err != nil {
		return nil, err
	}
	return &sc, nil
}

func decodeReceiverChain(b []byte) (*receiverChain, error) {
	var (
		rc  receiverChain
		pub []byte
	)
	err := codec.Walk(b, func(f codec.Field) error {
		var (
			raw []byte
			err error
		)
		switch f.Num {
		case 1:
			pub, err = f.Bytes()
		case 3:
			if raw, err = f.Bytes(); err == nil {
				rc.chainKey, err = decodeChainKey(raw)
			}
		case 4:
			if raw, err = f.Bytes(); err == nil {
				var mk ratchet.MessageKeys
				if mk, err = decodeMessageKeys(raw); err == nil {
					rc.messageKeys = append(rc.messageKeys, mk)
				}
			}
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	if rc.ratchetKey, err = crypto.DeserializePublicKey(pub); err != nil {
		return nil, err
	}
	return &rc, nil
}

func decodeMessageKeys(b []byte) (ratchet.MessageKeys, error) {
	var mk ratchet.MessageKeys
	err := codec.Walk(b, func(f codec.Field) error {
		var err error
		switch f.Num {
		case 1:
			mk.Counter, err = f.Uint32()
		case 2:
			mk.CipherKey, err = f.Bytes()
		case 3:
			mk.MACKey, err = f.Bytes()
		case 4:
			mk.IV, err = f.Bytes()
		}
		return err
	})
	return mk, err
}

func decodePendingPreKey(b []byte) (*PendingPreKey, error) {
	var (
		p    PendingPreKey
		base []byte
	)
	err := codec.Walk(b, func(f codec.Field) error {
		var err error
		switch f.Num {
		case 1:
			var id uint32
			if id, err = f.Uint32(); err == nil && id != 0 {
				p.PreKeyID = &id
			}
		case 2:
			base, err = f.Bytes()
		case 3:
			var id int32
			id, err = f.Int32()
			p.SignedPreKeyID = uint32(id)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	if p.BaseKey, err = crypto.DeserializePublicKey(base); err != nil {
		return nil, err
	}
	return &p, nil
}

func decodePendingKyber(b []byte) (*uint32, []byte, error) {
	var (
		id uint32
		ct []byte
	)
	err := codec.Walk(b, func(f codec.Field) error {
		var err error
		switch f.Num {
		case 1:
			id, err = f.Uint32()
		case 2:
			ct, err = f.Bytes()
		}
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return &id, ct, nil
}
