package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"os"
	"strconv"
	"strings"

	"homestead/crypto"
)

var rpcEndpoint = defaultRPCEndpoint()
var rpcAuthToken = os.Getenv("HOMESTEAD_RPC_TOKEN")

func defaultRPCEndpoint() string {
	if v := strings.TrimSpace(os.Getenv("RPC_URL")); v != "" {
		return v
	}
	return "http://localhost:8545"
}

func main() {
	args := os.Args[1:]
	if len(args) < 1 {
		printUsage()
		return
	}

	command := args[0]
	switch command {
	case "generate-key":
		path := "wallet.key"
		if len(args) > 1 {
			path = args[1]
		}
		generateKey(path)
	case "balance":
		if len(args) < 2 {
			fmt.Println("Error: Please provide an address.")
			printUsage()
			return
		}
		getBalance(args[1])
	case "fund":
		if len(args) < 3 {
			fmt.Println("Error: Please provide an address and an amount.")
			printUsage()
			return
		}
		fund(args[1], args[2])
	case "mint":
		if len(args) < 3 {
			fmt.Println("Error: Please provide an owner address and a token URI.")
			printUsage()
			return
		}
		mintDeed(args[1], args[2])
	case "list":
		if len(args) < 6 {
			fmt.Println("Error: Please provide a deed id, seller, buyer, price and escrow amount.")
			printUsage()
			return
		}
		listProperty(args[1], args[2], args[3], args[4], args[5])
	case "deposit":
		if len(args) < 4 {
			fmt.Println("Error: Please provide a listing id, caller and amount.")
			printUsage()
			return
		}
		deposit(args[1], args[2], args[3])
	case "inspect":
		if len(args) < 4 {
			fmt.Println("Error: Please provide a listing id, inspector address and pass/fail.")
			printUsage()
			return
		}
		inspect(args[1], args[2], args[3])
	case "approve":
		if len(args) < 3 {
			fmt.Println("Error: Please provide a listing id and a caller address.")
			printUsage()
			return
		}
		transition("hst_approve", args[1], args[2], "Sale approved.")
	case "finalize":
		if len(args) < 3 {
			fmt.Println("Error: Please provide a listing id and the seller address.")
			printUsage()
			return
		}
		transition("hst_finalize", args[1], args[2], "Sale finalized.")
	case "cancel":
		if len(args) < 3 {
			fmt.Println("Error: Please provide a listing id and a caller address.")
			printUsage()
			return
		}
		transition("hst_cancel", args[1], args[2], "Listing cancelled.")
	case "show":
		if len(args) < 2 {
			fmt.Println("Error: Please provide a listing id.")
			printUsage()
			return
		}
		showListing(args[1])
	case "listings":
		showListings()
	case "deed":
		if len(args) < 2 {
			fmt.Println("Error: Please provide a deed id.")
			printUsage()
			return
		}
		showDeed(args[1])
	case "events":
		showEvents()
	case "seed":
		if len(args) < 3 {
			fmt.Println("Error: Please provide a seller address and a buyer address.")
			printUsage()
			return
		}
		seed(args[1], args[2])
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
	}
}

func generateKey(path string) {
	if _, err := os.Stat(path); err == nil {
		fmt.Printf("Key file %s already exists; refusing to overwrite.\n", path)
		return
	}
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		fmt.Printf("Error generating key: %v\n", err)
		return
	}
	if err := crypto.SaveKey(path, key); err != nil {
		fmt.Printf("Error saving key: %v\n", err)
		return
	}
	fmt.Printf("New key saved to %s\n", path)
	fmt.Printf("Address: %s\n", key.PubKey().Address().String())
}

func getBalance(address string) {
	result, err := callRPC("hst_getBalance", map[string]string{"address": address}, false)
	if err != nil {
		fmt.Printf("Error fetching balance: %v\n", err)
		return
	}
	var out map[string]string
	if err := json.Unmarshal(result, &out); err != nil {
		fmt.Printf("Error decoding response: %v\n", err)
		return
	}
	fmt.Printf("Balance of %s: %s\n", address, out["balance"])
}

func fund(address, amount string) {
	value, err := parseTokens(amount)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	_, err = callRPC("hst_fund", map[string]string{
		"address": address,
		"amount":  value.String(),
	}, true)
	if err != nil {
		fmt.Printf("Error funding account: %v\n", err)
		return
	}
	fmt.Printf("Credited %s to %s\n", value.String(), address)
}

func mintDeed(owner, tokenURI string) {
	result, err := callRPC("hst_mintDeed", map[string]string{
		"owner":    owner,
		"tokenURI": tokenURI,
	}, true)
	if err != nil {
		fmt.Printf("Error minting deed: %v\n", err)
		return
	}
	var out struct {
		ID uint64 `json:"id"`
	}
	if err := json.Unmarshal(result, &out); err != nil {
		fmt.Printf("Error decoding response: %v\n", err)
		return
	}
	fmt.Printf("Minted deed %d for %s\n", out.ID, owner)
}

func listProperty(id, seller, buyer, price, escrowAmount string) {
	deedID, err := parseID(id)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	priceValue, err := parseTokens(price)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	escrowValue, err := parseTokens(escrowAmount)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	_, err = callRPC("hst_listProperty", map[string]interface{}{
		"id":            deedID,
		"caller":        seller,
		"buyer":         buyer,
		"purchasePrice": priceValue.String(),
		"escrowAmount":  escrowValue.String(),
	}, true)
	if err != nil {
		fmt.Printf("Error listing property: %v\n", err)
		return
	}
	fmt.Printf("Listed property %d at price %s (escrow %s)\n", deedID, priceValue.String(), escrowValue.String())
}

func deposit(id, caller, amount string) {
	listingID, err := parseID(id)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	value, err := parseTokens(amount)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	_, err = callRPC("hst_deposit", map[string]interface{}{
		"id":     listingID,
		"caller": caller,
		"amount": value.String(),
	}, true)
	if err != nil {
		fmt.Printf("Error depositing: %v\n", err)
		return
	}
	fmt.Println("Deposit recorded.")
}

func inspect(id, caller, passed string) {
	listingID, err := parseID(id)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	pass, err := strconv.ParseBool(passed)
	if err != nil {
		fmt.Println("Error: pass/fail must be true or false.")
		return
	}
	_, err = callRPC("hst_inspect", map[string]interface{}{
		"id":     listingID,
		"caller": caller,
		"passed": pass,
	}, true)
	if err != nil {
		fmt.Printf("Error updating inspection: %v\n", err)
		return
	}
	fmt.Printf("Inspection recorded: passed=%v\n", pass)
}

func transition(method, id, caller, success string) {
	listingID, err := parseID(id)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	_, err = callRPC(method, map[string]interface{}{
		"id":     listingID,
		"caller": caller,
	}, true)
	if err != nil {
		fmt.Printf("Error from node: %v\n", err)
		return
	}
	fmt.Println(success)
}

func showListing(id string) {
	listingID, err := parseID(id)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	result, err := callRPC("hst_getListing", map[string]interface{}{"id": listingID}, false)
	if err != nil {
		fmt.Printf("Error fetching listing: %v\n", err)
		return
	}
	printJSONResult(result)
}

func showListings() {
	result, err := callRPC("hst_getListings", nil, false)
	if err != nil {
		fmt.Printf("Error fetching listings: %v\n", err)
		return
	}
	printJSONResult(result)
}

func showDeed(id string) {
	deedID, err := parseID(id)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	result, err := callRPC("hst_deedOwner", map[string]interface{}{"id": deedID}, false)
	if err != nil {
		fmt.Printf("Error fetching deed: %v\n", err)
		return
	}
	printJSONResult(result)
}

func showEvents() {
	result, err := callRPC("hst_getEvents", nil, false)
	if err != nil {
		fmt.Printf("Error fetching events: %v\n", err)
		return
	}
	printJSONResult(result)
}

// seed mints three demonstration deeds for the seller and lists them for the
// buyer, matching the sample metadata collection.
func seed(seller, buyer string) {
	const collection = "ipfs://QmTudySYPiKnethExgrj1d9A5bDSX8yBAMV9x1RQFmtjMo"
	properties := []struct {
		price  string
		escrow string
	}{
		{"20", "2"},
		{"15", "1.5"},
		{"10", "1"},
	}
	for i, property := range properties {
		tokenURI := fmt.Sprintf("%s/%d.json", collection, i+1)
		result, err := callRPC("hst_mintDeed", map[string]string{
			"owner":    seller,
			"tokenURI": tokenURI,
		}, true)
		if err != nil {
			fmt.Printf("Error minting deed %d: %v\n", i+1, err)
			return
		}
		var minted struct {
			ID uint64 `json:"id"`
		}
		if err := json.Unmarshal(result, &minted); err != nil {
			fmt.Printf("Error decoding response: %v\n", err)
			return
		}
		priceValue, err := parseTokens(property.price)
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			return
		}
		escrowValue, err := parseTokens(property.escrow)
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			return
		}
		_, err = callRPC("hst_listProperty", map[string]interface{}{
			"id":            minted.ID,
			"caller":        seller,
			"buyer":         buyer,
			"purchasePrice": priceValue.String(),
			"escrowAmount":  escrowValue.String(),
		}, true)
		if err != nil {
			fmt.Printf("Error listing property %d: %v\n", minted.ID, err)
			return
		}
		fmt.Printf("Seeded listing %d (%s) at price %s\n", minted.ID, tokenURI, property.price)
	}
}

func callRPC(method string, param interface{}, requireAuth bool) (json.RawMessage, error) {
	payload := map[string]interface{}{"jsonrpc": "2.0", "id": 1, "method": method}
	if param != nil {
		payload["params"] = []interface{}{param}
	} else {
		payload["params"] = []interface{}{}
	}
	body, _ := json.Marshal(payload)

	req, err := http.NewRequest(http.MethodPost, rpcEndpoint, bytes.NewBuffer(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if requireAuth {
		if rpcAuthToken == "" {
			return nil, fmt.Errorf("privileged RPC call requires HOMESTEAD_RPC_TOKEN to be set")
		}
		req.Header.Set("Authorization", "Bearer "+strings.TrimSpace(rpcAuthToken))
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("POST %s: %w", rpcEndpoint, err)
	}
	defer resp.Body.Close()

	var rpcResp struct {
		Result json.RawMessage `json:"result"`
		Error  *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
			Data    string `json:"data"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return nil, fmt.Errorf("failed to decode response from node")
	}
	if rpcResp.Error != nil {
		if rpcResp.Error.Data != "" {
			return nil, fmt.Errorf("error from node: %s (%s)", rpcResp.Error.Message, rpcResp.Error.Data)
		}
		return nil, fmt.Errorf("error from node: %s", rpcResp.Error.Message)
	}
	return rpcResp.Result, nil
}

func printJSONResult(result json.RawMessage) {
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, result, "", "  "); err != nil {
		fmt.Println(string(result))
		return
	}
	fmt.Println(pretty.String())
}

func parseID(raw string) (uint64, error) {
	id, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid id %q", raw)
	}
	return id, nil
}

// tokenDecimals is the base-unit scale of ledger amounts: 1 token = 10^18
// base units.
const tokenDecimals = 18

// parseTokens converts a decimal token amount such as "1.5" into base units.
func parseTokens(raw string) (*big.Int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, fmt.Errorf("amount required")
	}
	whole := trimmed
	frac := ""
	if dot := strings.IndexByte(trimmed, '.'); dot >= 0 {
		whole = trimmed[:dot]
		frac = trimmed[dot+1:]
	}
	if whole == "" {
		whole = "0"
	}
	if len(frac) > tokenDecimals {
		return nil, fmt.Errorf("amount %q has more than %d decimal places", raw, tokenDecimals)
	}
	digits := whole + frac + strings.Repeat("0", tokenDecimals-len(frac))
	value, ok := new(big.Int).SetString(digits, 10)
	if !ok || value.Sign() < 0 {
		return nil, fmt.Errorf("invalid amount %q", raw)
	}
	return value, nil
}

func printUsage() {
	fmt.Println("Usage: homestead-cli <command> [arguments]")
	fmt.Println("\nCommands:")
	fmt.Println("  generate-key [file]                              Generate a new key pair")
	fmt.Println("  balance <address>                                Get the balance of an address")
	fmt.Println("  fund <address> <amount>                          Credit tokens to an address (dev faucet)")
	fmt.Println("  mint <owner> <tokenURI>                          Mint a property deed")
	fmt.Println("  list <deedId> <seller> <buyer> <price> <escrow>  List a property for sale")
	fmt.Println("  deposit <id> <caller> <amount>                   Deposit toward a listing")
	fmt.Println("  inspect <id> <inspector> <true|false>            Record the inspection outcome")
	fmt.Println("  approve <id> <caller>                            Approve the sale")
	fmt.Println("  finalize <id> <seller>                           Finalize the sale")
	fmt.Println("  cancel <id> <caller>                             Cancel the listing")
	fmt.Println("  show <id>                                        Show a listing")
	fmt.Println("  listings                                         Show all listings")
	fmt.Println("  deed <id>                                        Show a deed's owner and token URI")
	fmt.Println("  events                                           Show the recent event feed")
	fmt.Println("  seed <seller> <buyer>                            Mint and list the demo properties")
	fmt.Println("\nAmounts are decimal token values; 1 token = 10^18 base units.")
	fmt.Println("Set RPC_URL to target a node other than http://localhost:8545.")
	fmt.Println("Mutating commands require HOMESTEAD_RPC_TOKEN.")
}
