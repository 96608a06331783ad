package fixture

import "path/filepath"

// Root is the project root used by Sample.
const Root = "/work/dex"

// BaseSource declares an interface and an abstract base contract.
const BaseSource = `interface IToken {
    function transfer(address to, uint256 amount) external returns (bool);
}

abstract contract Base is IToken {
    uint256 internal supply;

    function transfer(address to, uint256 amount) public virtual returns (bool);

    function _bump() internal {
        supply = supply + 1;
    }
}
`

// TokenSource declares a diamond (Leaf extends Mid1 and Mid2, both of which
// extend Base) and a recursive function.
const TokenSource = `contract Mid1 is Base {
    function transfer(address to, uint256 amount) public virtual override returns (bool) {
        _bump();
        _bump();
        return true;
    }
}

contract Mid2 is Base {
    function fact(uint256 n) public returns (uint256) {
        if (n == 0) {
            return 1;
        }
        return n * fact(n - 1);
    }
}

contract Leaf is Mid1, Mid2 {
    function transfer(address to, uint256 amount) public override returns (bool) {
        return super.transfer(to, amount);
    }
}
`

// Sample returns the standard two-file project used across tests.
//
// Keys equal qualified names. Notable shapes:
//   - Base.supply's declaration is also reported as a use-site;
//   - Mid1.transfer calls Base._bump twice;
//   - Mid2.fact calls itself;
//   - Leaf.transfer calls Mid1.transfer and has one unresolved call.
func Sample() *Builder {
	return SampleAt(Root)
}

// SampleAt is Sample rooted at root, for tests that put the sources on disk.
func SampleAt(root string) *Builder {
	b := NewBuilder(root)

	base := b.File("Base.sol", BaseSource, 1)
	base.
		Decl("IToken", "interface", "IToken", "interface IToken", 0).
		Decl("IToken.transfer", "function", "IToken.transfer", "function transfer", 0,
			Parent("IToken"), Signature("transfer(address,uint256)"), Visibility("external")).
		Decl("Base", "contract", "Base", "abstract contract Base", 0, Abstract()).
		Decl("Base.supply", "state_variable", "Base.supply", "uint256 internal supply", 0,
			Parent("Base"), Visibility("internal")).
		Decl("Base.transfer", "function", "Base.transfer", "function transfer", 1,
			Parent("Base"), Signature("transfer(address,uint256)")).
		Decl("Base._bump", "function", "Base._bump", "function _bump", 0,
			Parent("Base"), Signature("_bump()"), Visibility("internal"), Implemented()).
		Inherit("Base", "IToken").
		Ref("IToken", "inherits", "IToken", 1).
		Ref("Base.supply", "write", "supply", 0).
		Ref("Base.supply", "write", "supply", 1).
		Ref("Base.supply", "read", "supply", 2)

	token := b.File("Token.sol", TokenSource, 2)
	token.
		Decl("Mid1", "contract", "Mid1", "contract Mid1", 0).
		Decl("Mid1.transfer", "function", "Mid1.transfer", "function transfer", 0,
			Parent("Mid1"), Signature("transfer(address,uint256)"), Implemented()).
		Decl("Mid2", "contract", "Mid2", "contract Mid2", 0).
		Decl("Mid2.fact", "function", "Mid2.fact", "function fact", 0,
			Parent("Mid2"), Signature("fact(uint256)"), Implemented()).
		Decl("Mid2.fact.n", "local_variable", "Mid2.fact.n", "uint256 n", 0, Parent("Mid2.fact")).
		Decl("Leaf", "contract", "Leaf", "contract Leaf", 0).
		Decl("Leaf.transfer", "function", "Leaf.transfer", "function transfer", 1,
			Parent("Leaf"), Signature("transfer(address,uint256)"), Implemented()).
		Inherit("Mid1", "Base").
		Inherit("Mid2", "Base").
		Inherit("Leaf", "Mid1", "Mid2").
		Ref("Base", "inherits", "Base", 0).
		Ref("Base", "inherits", "Base", 1).
		Ref("Mid1", "inherits", "Mid1", 1).
		Ref("Mid2", "inherits", "Mid2", 1).
		Ref("Base._bump", "call", "_bump", 1).
		Ref("Base._bump", "call", "_bump", 0).
		Ref("Base._bump", "call", "_bump", 0).
		Ref("Mid2.fact", "call", "fact", 1).
		Ref("Mid2.fact.n", "read", "n", 1).
		Ref("Mid2.fact.n", "read", "n", 2).
		Ref("Mid2.fact.n", "read", "n", 3).
		Ref("Mid1.transfer", "call", "transfer", 2).
		Call("Mid1.transfer", "Base._bump", "_bump", 0).
		Call("Mid1.transfer", "Base._bump", "_bump", 1).
		Call("Mid2.fact", "Mid2.fact", "fact", 1).
		Call("Leaf.transfer", "Mid1.transfer", "transfer", 2).
		Call("Leaf.transfer", "", "super", 0)

	b.Finding("incorrect-equality", "Medium", "High",
		"Mid2.fact(uint256) uses a dangerous strict equality: n == 0",
		token, "n", 1, "Mid2.fact")
	b.Finding("naming-convention", "Informational", "High",
		"Function Base._bump() is not in mixedCase",
		base, "_bump", 0, "Base._bump")
	b.Finding("missing-zero-check", "Low", "Medium",
		"Leaf.transfer(address,uint256).to lacks a zero-check",
		token, "to", 2, "Leaf.transfer")
	return b
}

// LibBaseSource is a library contract installed under lib/, outside the
// default include globs.
const LibBaseSource = `abstract contract Base {
    uint256 internal supply;

    function _mint(uint256 amount) internal {
        supply += amount;
    }
}
`

// AppTokenSource inherits the library contract.
const AppTokenSource = `import "../lib/oz/Base.sol";

contract Token is Base {
    function mint(uint256 amount) public {
        _mint(amount);
    }
}
`

// WithLibraryAt returns a project whose src/Token.sol inherits Base from
// lib/oz/Base.sol. The analyzer reports both files and a finding in the
// library.
func WithLibraryAt(root string) *Builder {
	b := NewBuilder(root)

	base := b.File(filepath.Join("lib", "oz", "Base.sol"), LibBaseSource, 0)
	base.
		Decl("Base", "contract", "Base", "abstract contract Base", 0, Abstract()).
		Decl("Base.supply", "state_variable", "Base.supply", "uint256 internal supply", 0,
			Parent("Base"), Visibility("internal")).
		Decl("Base._mint", "function", "Base._mint", "function _mint", 0,
			Parent("Base"), Signature("_mint(uint256)"), Visibility("internal"), Implemented()).
		Ref("Base.supply", "write", "supply", 1)

	token := b.File(filepath.Join("src", "Token.sol"), AppTokenSource, 0)
	token.
		Decl("Token", "contract", "Token", "contract Token", 0).
		Decl("Token.mint", "function", "Token.mint", "function mint", 0,
			Parent("Token"), Signature("mint(uint256)"), Implemented()).
		Inherit("Token", "Base").
		Ref("Base", "inherits", "Base", 1).
		Ref("Base._mint", "call", "_mint", 0).
		Call("Token.mint", "Base._mint", "_mint", 0)

	b.Finding("naming-convention", "Informational", "High",
		"Function Base._mint(uint256) is not in mixedCase",
		base, "_mint", 0, "Base._mint")
	return b
}
