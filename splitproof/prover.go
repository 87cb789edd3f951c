package splitproof

import (
	"bytes"
	"fmt"
	"math/big"
	"sync"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/backend/witness"
	"github.com/consensys/gnark/constraint"
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/frontend/cs/r1cs"
)

// Prover compiles circuits, runs trusted setup, and generates proofs.
type Prover struct {
	mu       sync.RWMutex
	circuits map[string]*CompiledCircuit
	curve    ecc.ID
}

// CompiledCircuit holds a compiled constraint system and its keys.
type CompiledCircuit struct {
	Name         string
	CS           constraint.ConstraintSystem
	ProvingKey   groth16.ProvingKey
	VerifyingKey groth16.VerifyingKey
	Constraints  int
	PublicVars   int
	PrivateVars  int
}

// Proof is a serialized Groth16 proof together with its public inputs and
// the verifying key of the setup that produced it. Setup is randomized, so
// a proof only checks against its own key; carrying the key in the
// artifact lets VerifyProof run without access to the original prover.
// PublicInputs are the witness values rendered as hex for display and
// journaling.
type Proof struct {
	Circuit       string   `json:"circuit"`
	Constraints   int      `json:"constraints"`
	PublicInputs  []string `json:"public_inputs"`
	Data          []byte   `json:"data"`
	PublicWitness []byte   `json:"public_witness"`
	VerifyingKey  []byte   `json:"verifying_key"`
}

// NewProver creates a prover on BN254.
func NewProver() *Prover {
	return &Prover{
		circuits: make(map[string]*CompiledCircuit),
		curve:    ecc.BN254,
	}
}

// NewSplitProver creates a prover with the fee-split circuit registered.
func NewSplitProver() (*Prover, error) {
	p := NewProver()
	if err := p.Register(CircuitName, &Circuit{}); err != nil {
		return nil, err
	}
	return p, nil
}

// Register compiles a circuit, runs trusted setup, and stores it under
// name.
func (p *Prover) Register(name string, circuit frontend.Circuit) error {
	cs, err := frontend.Compile(p.curve.ScalarField(), r1cs.NewBuilder, circuit)
	if err != nil {
		return fmt.Errorf("circuit compilation failed: %w", err)
	}
	pk, vk, err := groth16.Setup(cs)
	if err != nil {
		return fmt.Errorf("setup failed: %w", err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.circuits[name] = &CompiledCircuit{
		Name:         name,
		CS:           cs,
		ProvingKey:   pk,
		VerifyingKey: vk,
		Constraints:  cs.GetNbConstraints(),
		PublicVars:   cs.GetNbPublicVariables(),
		PrivateVars:  cs.GetNbSecretVariables(),
	}
	return nil
}

// Circuit returns a compiled circuit by name.
func (p *Prover) Circuit(name string) (*CompiledCircuit, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	cc, ok := p.circuits[name]
	return cc, ok
}

func (p *Prover) circuit(name string) (*CompiledCircuit, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	cc, ok := p.circuits[name]
	if !ok {
		return nil, fmt.Errorf("circuit %q not registered", name)
	}
	return cc, nil
}

// Prove generates a proof for the assignment against the named circuit.
func (p *Prover) Prove(name string, assignment frontend.Circuit) (*Proof, error) {
	cc, err := p.circuit(name)
	if err != nil {
		return nil, err
	}
	w, err := frontend.NewWitness(assignment, p.curve.ScalarField())
	if err != nil {
		return nil, fmt.Errorf("witness creation failed: %w", err)
	}
	proof, err := groth16.Prove(cc.CS, cc.ProvingKey, w)
	if err != nil {
		return nil, fmt.Errorf("proof generation failed: %w", err)
	}
	public, err := w.Public()
	if err != nil {
		return nil, fmt.Errorf("public witness extraction failed: %w", err)
	}
	return serialize(cc, proof, public)
}

// Verify regenerates and checks a proof for the assignment. It fails when
// the assignment violates the circuit's constraints.
func (p *Prover) Verify(name string, assignment frontend.Circuit) error {
	cc, err := p.circuit(name)
	if err != nil {
		return err
	}
	w, err := frontend.NewWitness(assignment, p.curve.ScalarField())
	if err != nil {
		return fmt.Errorf("witness creation failed: %w", err)
	}
	proof, err := groth16.Prove(cc.CS, cc.ProvingKey, w)
	if err != nil {
		return fmt.Errorf("proof generation failed: %w", err)
	}
	public, err := w.Public()
	if err != nil {
		return fmt.Errorf("public witness extraction failed: %w", err)
	}
	return groth16.Verify(proof, cc.VerifyingKey, public)
}

// VerifyBytes checks a previously serialized proof against its public
// witness using the named circuit's verifying key. The proof must come
// from this prover's setup; proofs from other processes carry their own
// key and go through VerifyProof.
func (p *Prover) VerifyBytes(name string, proofData, publicWitness []byte) error {
	cc, err := p.circuit(name)
	if err != nil {
		return err
	}
	proof := groth16.NewProof(p.curve)
	if _, err := proof.ReadFrom(bytes.NewReader(proofData)); err != nil {
		return fmt.Errorf("decoding proof: %w", err)
	}
	public, err := witness.New(p.curve.ScalarField())
	if err != nil {
		return fmt.Errorf("creating witness: %w", err)
	}
	if err := public.UnmarshalBinary(publicWitness); err != nil {
		return fmt.Errorf("decoding public witness: %w", err)
	}
	return groth16.Verify(proof, cc.VerifyingKey, public)
}

// VerifyProof checks a serialized proof using the verifying key embedded
// in it. No compiled circuit is needed.
func VerifyProof(p *Proof) error {
	if len(p.VerifyingKey) == 0 {
		return fmt.Errorf("proof carries no verifying key")
	}
	vk := groth16.NewVerifyingKey(ecc.BN254)
	if _, err := vk.ReadFrom(bytes.NewReader(p.VerifyingKey)); err != nil {
		return fmt.Errorf("decoding verifying key: %w", err)
	}
	proof := groth16.NewProof(ecc.BN254)
	if _, err := proof.ReadFrom(bytes.NewReader(p.Data)); err != nil {
		return fmt.Errorf("decoding proof: %w", err)
	}
	public, err := witness.New(ecc.BN254.ScalarField())
	if err != nil {
		return fmt.Errorf("creating witness: %w", err)
	}
	if err := public.UnmarshalBinary(p.PublicWitness); err != nil {
		return fmt.Errorf("decoding public witness: %w", err)
	}
	return groth16.Verify(proof, vk, public)
}

// serialize packs the proof and its public witness into a Proof. Public
// inputs are 32-byte field elements after a 12-byte witness header.
func serialize(cc *CompiledCircuit, proof groth16.Proof, public witness.Witness) (*Proof, error) {
	out := &Proof{
		Circuit:     cc.Name,
		Constraints: cc.Constraints,
	}

	var buf bytes.Buffer
	if _, err := proof.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("marshal proof: %w", err)
	}
	out.Data = buf.Bytes()

	pubBytes, err := public.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("marshal public witness: %w", err)
	}
	out.PublicWitness = pubBytes

	var vkBuf bytes.Buffer
	if _, err := cc.VerifyingKey.WriteTo(&vkBuf); err != nil {
		return nil, fmt.Errorf("marshal verifying key: %w", err)
	}
	out.VerifyingKey = vkBuf.Bytes()

	const headerSize = 12
	const elementSize = 32
	if len(pubBytes) > headerSize {
		data := pubBytes[headerSize:]
		n := len(data) / elementSize
		out.PublicInputs = make([]string, 0, n)
		for i := 0; i < n; i++ {
			val := new(big.Int).SetBytes(data[i*elementSize : (i+1)*elementSize])
			out.PublicInputs = append(out.PublicInputs, fmt.Sprintf("0x%064x", val))
		}
	}
	return out, nil
}
