// Copyright (c) 2023-2025 Conceal Network & Conceal Devs
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wtxmgr

import (
	"fmt"
	"sort"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/cartoon-face/conceal-core/serial"
	"github.com/lightningnetwork/lnd/clock"
)

// defaultTxLiveTime is how long a submitted transaction may sit outside a
// block before DeleteOutdated gives up on it.
const defaultTxLiveTime = 24 * time.Hour

// UnconfirmedTxInfo describes one submitted transaction awaiting
// confirmation.
type UnconfirmedTxInfo struct {
	// Tx is the serialized transaction body, kept so the transaction can
	// be rebroadcast.
	Tx []byte

	// Amount is the base-currency value leaving the wallet, excluding
	// change.
	Amount uint64

	// OutsAmount is the base-currency value of the created outputs
	// addressed back to the wallet.
	OutsAmount uint64

	SentTime      time.Time
	TransactionID TransactionID

	// UsedOutputs are the wallet outputs the transaction spends.  They
	// count as claimed until the transaction confirms or expires.
	UsedOutputs []OutPoint

	// TokenID and TokenAmount carry the token quantity moved by a token
	// transaction, both 0 for plain sends.
	TokenID     uint64
	TokenAmount uint64
}

// UnconfirmedSpentDepositDetails records the deposit value withdrawn by a
// pending transaction so locked-balance queries stay correct while it is in
// flight.
type UnconfirmedSpentDepositDetails struct {
	TransactionID TransactionID

	// DepositsSum is the total amount plus interest of the deposits the
	// transaction withdraws.
	DepositsSum uint64

	Fee uint64
}

// UnconfirmedTxSet tracks transactions the wallet has submitted but not yet
// seen in a block, the outputs they claim, and the deposit and token value
// they create or withdraw.  It is not safe for concurrent use.
type UnconfirmedTxSet struct {
	clk      clock.Clock
	liveTime time.Duration

	txs         map[chainhash.Hash]*UnconfirmedTxInfo
	usedOutputs map[OutPoint]chainhash.Hash

	// createdDeposits maps pending deposit ids to amount plus interest;
	// spentDeposits tracks withdrawals keyed by the withdrawing
	// transaction hash.
	createdDeposits map[DepositID]uint64
	spentDeposits   map[chainhash.Hash]UnconfirmedSpentDepositDetails

	createdTokenTxs map[TokenTxID]uint64
}

// NewUnconfirmedTxSet returns an empty set.  A zero liveTime selects the
// default expiry of 24 hours.
func NewUnconfirmedTxSet(liveTime time.Duration,
	clk clock.Clock) *UnconfirmedTxSet {

	if liveTime == 0 {
		liveTime = defaultTxLiveTime
	}
	if clk == nil {
		clk = clock.NewDefaultClock()
	}

	u := &UnconfirmedTxSet{
		clk:      clk,
		liveTime: liveTime,
	}
	u.Reset()

	return u
}

// Reset drops all tracked state.
func (u *UnconfirmedTxSet) Reset() {
	u.txs = make(map[chainhash.Hash]*UnconfirmedTxInfo)
	u.usedOutputs = make(map[OutPoint]chainhash.Hash)
	u.createdDeposits = make(map[DepositID]uint64)
	u.spentDeposits = make(map[chainhash.Hash]UnconfirmedSpentDepositDetails)
	u.createdTokenTxs = make(map[TokenTxID]uint64)
}

// Add registers a freshly submitted transaction.  The transaction hash is
// derived from the body; outputs are the created outputs addressed back to
// the wallet and usedOutputs the wallet outputs being spent.  It fails with
// ErrOutputClaimed if any spent output is already claimed by another live
// pending transaction.
func (u *UnconfirmedTxSet) Add(body []byte, id TransactionID, amount uint64,
	outputs []TransactionOutput, usedOutputs []OutPoint) (chainhash.Hash,
	error) {

	hash := TransactionBodyHash(body)

	for _, out := range usedOutputs {
		if claimer, ok := u.usedOutputs[out]; ok &&
			claimer != hash {

			return hash, storeError(ErrOutputClaimed,
				fmt.Sprintf("output %x:%d is claimed by "+
					"pending transaction %v", out.Key,
					out.Index, claimer), nil)
		}
	}

	// Re-adding the same hash replaces the record.  Release the old
	// claims first so outputs dropped by the replacement are not left
	// stranded in the claim set.
	if old, ok := u.txs[hash]; ok {
		for _, out := range old.UsedOutputs {
			delete(u.usedOutputs, out)
		}
	}

	info := &UnconfirmedTxInfo{
		Tx:            body,
		Amount:        amount,
		SentTime:      u.clk.Now(),
		TransactionID: id,
		UsedOutputs:   append([]OutPoint(nil), usedOutputs...),
	}
	for _, out := range outputs {
		info.OutsAmount += out.Amount
		if out.TokenID != 0 {
			info.TokenID = out.TokenID
			info.TokenAmount += out.TokenAmount
		}
	}

	u.txs[hash] = info
	for _, out := range usedOutputs {
		u.usedOutputs[out] = hash
	}

	return hash, nil
}

// Erase removes a tracked transaction and releases its claims.  Erasing a
// hash the set does not know is a programming error and panics.
func (u *UnconfirmedTxSet) Erase(hash chainhash.Hash) {
	info, ok := u.txs[hash]
	if !ok {
		panic(fmt.Sprintf("wtxmgr: erase of unknown unconfirmed "+
			"transaction %v", hash))
	}

	for _, out := range info.UsedOutputs {
		delete(u.usedOutputs, out)
	}
	delete(u.txs, hash)
	delete(u.spentDeposits, hash)
}

// FindTransactionID returns the record id of the pending transaction with
// the given hash.
func (u *UnconfirmedTxSet) FindTransactionID(
	hash chainhash.Hash) (TransactionID, bool) {

	info, ok := u.txs[hash]
	if !ok {
		return InvalidTransactionID, false
	}
	return info.TransactionID, true
}

// UpdateTransactionID repoints a tracked transaction at a new record id.
func (u *UnconfirmedTxSet) UpdateTransactionID(hash chainhash.Hash,
	id TransactionID) bool {

	info, ok := u.txs[hash]
	if !ok {
		return false
	}
	info.TransactionID = id
	return true
}

// IsUsed reports whether an output is claimed by a live pending transaction.
func (u *UnconfirmedTxSet) IsUsed(out OutPoint) bool {
	_, ok := u.usedOutputs[out]
	return ok
}

// AddCreatedDeposit registers a deposit created by a not-yet-confirmed
// transaction.  totalAmount is the deposit amount plus interest.
func (u *UnconfirmedTxSet) AddCreatedDeposit(id DepositID,
	totalAmount uint64) {

	u.createdDeposits[id] = totalAmount
}

// EraseCreatedDeposit drops a pending deposit registration.  Unknown ids are
// ignored so confirmation paths need not track whether registration
// happened.
func (u *UnconfirmedTxSet) EraseCreatedDeposit(id DepositID) {
	delete(u.createdDeposits, id)
}

// AddDepositSpendingTransaction registers a pending withdrawal.  Registering
// the same hash twice is a programming error and panics.
func (u *UnconfirmedTxSet) AddDepositSpendingTransaction(hash chainhash.Hash,
	details UnconfirmedSpentDepositDetails) {

	if _, ok := u.spentDeposits[hash]; ok {
		panic(fmt.Sprintf("wtxmgr: duplicate deposit spending "+
			"transaction %v", hash))
	}
	u.spentDeposits[hash] = details
}

// AddCreatedTokenTx registers a token transaction minting new token units
// while it awaits confirmation.
func (u *UnconfirmedTxSet) AddCreatedTokenTx(id TokenTxID, amount uint64) {
	u.createdTokenTxs[id] = amount
}

// EraseCreatedTokenTx drops a pending token mint registration.  Unknown ids
// are ignored.
func (u *UnconfirmedTxSet) EraseCreatedTokenTx(id TokenTxID) {
	delete(u.createdTokenTxs, id)
}

// CreatedDepositsSum returns the amount plus interest of all deposits
// awaiting confirmation.
func (u *UnconfirmedTxSet) CreatedDepositsSum() uint64 {
	var sum uint64
	for _, amount := range u.createdDeposits {
		sum += amount
	}
	return sum
}

// CreatedTokenTxsSum returns the token units being minted by pending token
// transactions.
func (u *UnconfirmedTxSet) CreatedTokenTxsSum() uint64 {
	var sum uint64
	for _, amount := range u.createdTokenTxs {
		sum += amount
	}
	return sum
}

// SpentDepositsProfit returns the deposit value being withdrawn net of fees.
func (u *UnconfirmedTxSet) SpentDepositsProfit() uint64 {
	var sum uint64
	for _, d := range u.spentDeposits {
		sum += d.DepositsSum - d.Fee
	}
	return sum
}

// SpentDepositsTotalAmount returns the gross deposit value being withdrawn.
func (u *UnconfirmedTxSet) SpentDepositsTotalAmount() uint64 {
	var sum uint64
	for _, d := range u.spentDeposits {
		sum += d.DepositsSum
	}
	return sum
}

// TransactionsAmount sums the value leaving the wallet across pending
// transactions.  Token id 0 selects the base currency; any other id selects
// the matching token quantity.
func (u *UnconfirmedTxSet) TransactionsAmount(tokenID uint64) uint64 {
	var sum uint64
	for _, info := range u.txs {
		switch {
		case tokenID == 0:
			sum += info.Amount
		case info.TokenID == tokenID:
			sum += info.TokenAmount
		}
	}
	return sum
}

// OutsAmount sums the value returning to the wallet across pending
// transactions, with the same token id selection as TransactionsAmount.
func (u *UnconfirmedTxSet) OutsAmount(tokenID uint64) uint64 {
	var sum uint64
	for _, info := range u.txs {
		switch {
		case tokenID == 0:
			sum += info.OutsAmount
		case info.TokenID == tokenID:
			sum += info.TokenAmount
		}
	}
	return sum
}

// Size returns the number of tracked transactions.
func (u *UnconfirmedTxSet) Size() int {
	return len(u.txs)
}

// DeleteOutdated drops every transaction that has been pending longer than
// the live time and returns the record ids of the dropped transactions in
// ascending order.
func (u *UnconfirmedTxSet) DeleteOutdated() []TransactionID {
	deadline := u.clk.Now().Add(-u.liveTime)

	var expired []chainhash.Hash
	for hash, info := range u.txs {
		if !info.SentTime.After(deadline) {
			expired = append(expired, hash)
		}
	}

	ids := make([]TransactionID, 0, len(expired))
	for _, hash := range expired {
		ids = append(ids, u.txs[hash].TransactionID)
		u.Erase(hash)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	return ids
}

// Serialize visits the set's state.  Map contents are visited in sorted key
// order so encoding is deterministic.  Token fields are only present from
// object version 2 on.
func (u *UnconfirmedTxSet) Serialize(s serial.Serializer) error {
	withTokens := s.ObjectVersion() >= 2

	if err := u.serializeTxs(s, withTokens); err != nil {
		return err
	}
	if err := u.serializeCreatedDeposits(s); err != nil {
		return err
	}
	if err := u.serializeSpentDeposits(s); err != nil {
		return err
	}
	if withTokens {
		if err := u.serializeCreatedTokenTxs(s); err != nil {
			return err
		}
	}

	return nil
}

func (u *UnconfirmedTxSet) serializeTxs(s serial.Serializer,
	withTokens bool) error {

	count := uint64(len(u.txs))
	if err := s.SequenceLength(&count, "unconfirmed_count"); err != nil {
		return err
	}

	if s.Reading() {
		u.txs = make(map[chainhash.Hash]*UnconfirmedTxInfo, count)
		u.usedOutputs = make(map[OutPoint]chainhash.Hash)
		for i := uint64(0); i < count; i++ {
			var hash chainhash.Hash
			if err := s.Hash(&hash, "tx_hash"); err != nil {
				return err
			}
			info := new(UnconfirmedTxInfo)
			err := serializeTxInfo(s, info, withTokens)
			if err != nil {
				return err
			}
			u.txs[hash] = info
			for _, out := range info.UsedOutputs {
				u.usedOutputs[out] = hash
			}
		}
		return nil
	}

	for _, hash := range sortedHashes(u.txs) {
		hash := hash
		if err := s.Hash(&hash, "tx_hash"); err != nil {
			return err
		}
		err := serializeTxInfo(s, u.txs[hash], withTokens)
		if err != nil {
			return err
		}
	}
	return nil
}

func serializeTxInfo(s serial.Serializer, info *UnconfirmedTxInfo,
	withTokens bool) error {

	if err := s.Bytes(&info.Tx, "tx"); err != nil {
		return err
	}
	if err := s.Uint64(&info.Amount, "amount"); err != nil {
		return err
	}
	if err := s.Uint64(&info.OutsAmount, "outs_amount"); err != nil {
		return err
	}

	sentTime := uint64(info.SentTime.Unix())
	if err := s.Uint64(&sentTime, "sent_time"); err != nil {
		return err
	}
	if s.Reading() {
		info.SentTime = time.Unix(int64(sentTime), 0).UTC()
	}

	id := uint64(info.TransactionID)
	if err := s.Uint64(&id, "transaction_id"); err != nil {
		return err
	}
	info.TransactionID = TransactionID(id)

	outCount := uint64(len(info.UsedOutputs))
	if err := s.SequenceLength(&outCount, "used_outputs"); err != nil {
		return err
	}
	if s.Reading() {
		info.UsedOutputs = nil
		if outCount > 0 {
			info.UsedOutputs = make([]OutPoint, outCount)
		}
	}
	for i := range info.UsedOutputs {
		out := &info.UsedOutputs[i]
		key := (*chainhash.Hash)(&out.Key)
		if err := s.Hash(key, "output_key"); err != nil {
			return err
		}
		if err := s.Uint32(&out.Index, "output_index"); err != nil {
			return err
		}
	}

	if withTokens {
		if err := s.Uint64(&info.TokenID, "token_id"); err != nil {
			return err
		}
		err := s.Uint64(&info.TokenAmount, "token_amount")
		if err != nil {
			return err
		}
	}

	return nil
}

func (u *UnconfirmedTxSet) serializeCreatedDeposits(
	s serial.Serializer) error {

	count := uint64(len(u.createdDeposits))
	err := s.SequenceLength(&count, "created_deposits")
	if err != nil {
		return err
	}

	if s.Reading() {
		u.createdDeposits = make(map[DepositID]uint64, count)
		for i := uint64(0); i < count; i++ {
			var id, amount uint64
			if err := s.Uint64(&id, "deposit_id"); err != nil {
				return err
			}
			err := s.Uint64(&amount, "deposit_amount")
			if err != nil {
				return err
			}
			u.createdDeposits[DepositID(id)] = amount
		}
		return nil
	}

	ids := make([]DepositID, 0, count)
	for id := range u.createdDeposits {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		rawID, amount := uint64(id), u.createdDeposits[id]
		if err := s.Uint64(&rawID, "deposit_id"); err != nil {
			return err
		}
		if err := s.Uint64(&amount, "deposit_amount"); err != nil {
			return err
		}
	}
	return nil
}

func (u *UnconfirmedTxSet) serializeSpentDeposits(
	s serial.Serializer) error {

	count := uint64(len(u.spentDeposits))
	if err := s.SequenceLength(&count, "spent_deposits"); err != nil {
		return err
	}

	visit := func(hash *chainhash.Hash,
		d *UnconfirmedSpentDepositDetails) error {

		if err := s.Hash(hash, "spending_tx_hash"); err != nil {
			return err
		}
		id := uint64(d.TransactionID)
		if err := s.Uint64(&id, "transaction_id"); err != nil {
			return err
		}
		d.TransactionID = TransactionID(id)
		if err := s.Uint64(&d.DepositsSum, "deposits_sum"); err != nil {
			return err
		}
		return s.Uint64(&d.Fee, "fee")
	}

	if s.Reading() {
		u.spentDeposits = make(
			map[chainhash.Hash]UnconfirmedSpentDepositDetails,
			count,
		)
		for i := uint64(0); i < count; i++ {
			var hash chainhash.Hash
			var d UnconfirmedSpentDepositDetails
			if err := visit(&hash, &d); err != nil {
				return err
			}
			u.spentDeposits[hash] = d
		}
		return nil
	}

	for _, hash := range sortedHashes(u.spentDeposits) {
		hash := hash
		d := u.spentDeposits[hash]
		if err := visit(&hash, &d); err != nil {
			return err
		}
	}
	return nil
}

func (u *UnconfirmedTxSet) serializeCreatedTokenTxs(
	s serial.Serializer) error {

	count := uint64(len(u.createdTokenTxs))
	err := s.SequenceLength(&count, "created_token_txs")
	if err != nil {
		return err
	}

	if s.Reading() {
		u.createdTokenTxs = make(map[TokenTxID]uint64, count)
		for i := uint64(0); i < count; i++ {
			var id, amount uint64
			if err := s.Uint64(&id, "token_tx_id"); err != nil {
				return err
			}
			err := s.Uint64(&amount, "token_amount")
			if err != nil {
				return err
			}
			u.createdTokenTxs[TokenTxID(id)] = amount
		}
		return nil
	}

	ids := make([]TokenTxID, 0, count)
	for id := range u.createdTokenTxs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		rawID, amount := uint64(id), u.createdTokenTxs[id]
		if err := s.Uint64(&rawID, "token_tx_id"); err != nil {
			return err
		}
		if err := s.Uint64(&amount, "token_amount"); err != nil {
			return err
		}
	}
	return nil
}

// sortedHashes returns the keys of a hash-keyed map in ascending byte order.
func sortedHashes[V any](m map[chainhash.Hash]V) []chainhash.Hash {
	hashes := make([]chainhash.Hash, 0, len(m))
	for hash := range m {
		hashes = append(hashes, hash)
	}
	sort.Slice(hashes, func(i, j int) bool {
		return string(hashes[i][:]) < string(hashes[j][:])
	})
	return hashes
}
